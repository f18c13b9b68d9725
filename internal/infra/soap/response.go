package soap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/vietddude/registrygw/internal/core/domain"
	"github.com/vietddude/registrygw/internal/core/failure"
)

// Fault is a SOAP fault returned by the registry. Detail is already
// sanitized.
type Fault struct {
	Code   string
	String string
	Actor  string
	Detail map[string]any
}

func (f *Fault) Error() string {
	return fmt.Sprintf("soap fault %s: %s", f.Code, f.String)
}

// Err converts the fault into a classified error for operation op.
func (f *Fault) Err(op string) *failure.Error {
	err := &failure.Error{
		Code:    failure.FromFaultCode(f.Code),
		Op:      op,
		Message: f.String,
		Err:     f,
	}
	err.WithDetail("faultcode", f.Code)
	err.WithDetail("faultstring", f.String)
	if f.Actor != "" {
		err.WithDetail("faultactor", f.Actor)
	}
	if len(f.Detail) > 0 {
		err.WithDetail("detail", f.Detail)
	}
	return err
}

// Occurrence is one entry of the registry's ocorrencias list.
type Occurrence struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Type        string `json:"type,omitempty"`
	Location    string `json:"location,omitempty"`
}

// Status is the registry's own answer code found inside a payload.
type Status struct {
	Code        int          `json:"code"`
	Description string       `json:"description"`
	Occurrences []Occurrence `json:"occurrences,omitempty"`
}

// BatchStatus interprets the answer code.
func (s *Status) BatchStatus() domain.BatchStatus {
	switch s.Code {
	case 201:
		return domain.BatchProcessed
	case 202:
		return domain.BatchProcessing
	case 401, 501:
		return domain.BatchRejected
	case 402, 502, 503:
		return domain.BatchFailed
	default:
		return domain.BatchUnknown
	}
}

// Err returns the classified error for failing answer codes, or nil.
func (s *Status) Err(op string) *failure.Error {
	var code failure.Code
	switch s.Code {
	case 401, 501:
		code = failure.InvalidPayload
	case 402, 502, 503:
		code = failure.ServerUnavailable
	default:
		return nil
	}
	err := failure.New(code, "registry answered %d: %s", s.Code, s.Description).WithOp(op)
	err.WithDetail("cdResposta", s.Code)
	err.WithDetail("descResposta", s.Description)
	if len(s.Occurrences) > 0 {
		occ := make([]any, 0, len(s.Occurrences))
		for _, o := range s.Occurrences {
			occ = append(occ, map[string]any{"codigo": o.Code, "descricao": o.Description})
		}
		err.WithDetail("ocorrencias", occ)
	}
	return err
}

// Payload is the domain part of a response, stripped of the envelope.
type Payload struct {
	Operation string
	Element   *etree.Element
	XML       string
	Status    *Status // nil when the payload carries no cdResposta
}

// Find returns the trimmed text of the first element named tag (local
// name) anywhere in the payload, or "".
func (p *Payload) Find(tag string) string {
	if p == nil || p.Element == nil {
		return ""
	}
	return text(findByTag(p.Element, tag))
}

// ParseResponse parses a raw response for method. Malformed XML is
// InvalidXML; a SOAP fault is returned as a classified error wrapping *Fault.
func ParseResponse(raw []byte, method string) (*Payload, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, failure.Wrap(failure.InvalidXML, err, "malformed response").WithOp(method)
	}

	root := doc.Root()
	if root == nil || root.Tag != "Envelope" {
		return nil, failure.New(failure.InvalidXML, "response is not a SOAP envelope").WithOp(method)
	}
	body := childByTag(root, "Body")
	if body == nil {
		return nil, failure.New(failure.InvalidXML, "envelope has no Body").WithOp(method)
	}

	if faultEl := childByTag(body, "Fault"); faultEl != nil {
		return nil, parseFault(faultEl).Err(method)
	}

	content := unwrap(body, method)
	if content == nil {
		return nil, failure.New(failure.InvalidXML, "empty response body").WithOp(method)
	}

	out := etree.NewDocument()
	out.SetRoot(content.Copy())
	xml, err := out.WriteToString()
	if err != nil {
		return nil, failure.Wrap(failure.InvalidXML, err, "serialize payload").WithOp(method)
	}

	return &Payload{
		Operation: method,
		Element:   content,
		XML:       xml,
		Status:    parseStatus(content),
	}, nil
}

// IsFault reports whether err came from a SOAP fault.
func IsFault(err error) (*Fault, bool) {
	fe, ok := failure.As(err)
	if !ok {
		return nil, false
	}
	f, ok := fe.Err.(*Fault)
	return f, ok
}

// unwrap walks Body → <method>Response → <method>Result | return, falling
// back to the closest element child at each step.
func unwrap(body *etree.Element, method string) *etree.Element {
	resp := childByTag(body, method+"Response")
	if resp == nil {
		resp = firstChild(body)
	}
	if resp == nil {
		return nil
	}

	if r := childByTag(resp, method+"Result"); r != nil {
		return inner(r)
	}
	if r := childByTag(resp, "return"); r != nil {
		return inner(r)
	}
	return resp
}

// inner descends through a result wrapper holding a single document.
func inner(el *etree.Element) *etree.Element {
	if kids := el.ChildElements(); len(kids) == 1 {
		return kids[0]
	}
	return el
}

func parseFault(el *etree.Element) *Fault {
	f := &Fault{
		Code:   text(childByTag(el, "faultcode")),
		String: text(childByTag(el, "faultstring")),
		Actor:  text(childByTag(el, "faultactor")),
	}

	// SOAP 1.2 style: Code/Value and Reason/Text.
	if f.Code == "" {
		if c := childByTag(el, "Code"); c != nil {
			f.Code = text(childByTag(c, "Value"))
			if sub := childByTag(c, "Subcode"); sub != nil {
				f.Code += "." + localName(text(childByTag(sub, "Value")))
			}
		}
	}
	if f.String == "" {
		if r := childByTag(el, "Reason"); r != nil {
			f.String = text(childByTag(r, "Text"))
		}
	}

	detail := childByTag(el, "detail")
	if detail == nil {
		detail = childByTag(el, "Detail")
	}
	if detail != nil {
		f.Detail = SanitizeDetail(detail)
	}
	return f
}

func parseStatus(el *etree.Element) *Status {
	cd := findByTag(el, "cdResposta")
	if cd == nil {
		return nil
	}
	code, err := strconv.Atoi(strings.TrimSpace(cd.Text()))
	if err != nil {
		return nil
	}
	st := &Status{Code: code}
	if desc := findByTag(el, "descResposta"); desc != nil {
		st.Description = strings.TrimSpace(desc.Text())
	}
	for _, o := range findAllByTag(el, "ocorrencia") {
		st.Occurrences = append(st.Occurrences, Occurrence{
			Code:        text(findByTag(o, "codigo")),
			Description: text(findByTag(o, "descricao")),
			Type:        text(findByTag(o, "tipo")),
			Location:    text(findByTag(o, "localizacao")),
		})
	}
	return st
}

func childByTag(el *etree.Element, tag string) *etree.Element {
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

func firstChild(el *etree.Element) *etree.Element {
	kids := el.ChildElements()
	if len(kids) == 0 {
		return nil
	}
	return kids[0]
}

func findByTag(el *etree.Element, tag string) *etree.Element {
	if el.Tag == tag {
		return el
	}
	for _, c := range el.ChildElements() {
		if found := findByTag(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findAllByTag(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	if el.Tag == tag {
		out = append(out, el)
	}
	for _, c := range el.ChildElements() {
		out = append(out, findAllByTag(c, tag)...)
	}
	return out
}

func text(el *etree.Element) string {
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}

func localName(s string) string {
	if i := strings.LastIndex(s, ":"); i >= 0 {
		return s[i+1:]
	}
	return s
}
