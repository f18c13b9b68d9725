// Package soap builds SOAP 1.1 envelopes for the registry and unwraps its
// responses and faults.
package soap

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/vietddude/registrygw/internal/core/domain"
	"github.com/vietddude/registrygw/internal/core/failure"
)

// EnvelopeNS is the SOAP 1.1 envelope namespace.
const EnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"

// ContentType is sent on every request.
const ContentType = "text/xml; charset=utf-8"

const (
	envPrefix = "soapenv"
	opPrefix  = "v1"
)

// Header is the per-request identification block.
type Header struct {
	Environment   domain.Environment
	EmployerID    string
	TransmitterID string
}

// BuildEnvelope wraps body in <method> under the operation namespace and
// prefixes the identification header. body is an opaque XML fragment and
// may be empty.
func BuildEnvelope(h Header, namespace, method, body string) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement(envPrefix + ":Envelope")
	env.CreateAttr("xmlns:"+envPrefix, EnvelopeNS)
	env.CreateAttr("xmlns:"+opPrefix, namespace)

	header := env.CreateElement(envPrefix + ":Header")
	ident := header.CreateElement(opPrefix + ":identificacao")
	ident.CreateElement(opPrefix + ":tpAmb").SetText(strconv.Itoa(h.Environment.Flag()))
	ident.CreateElement(opPrefix + ":ideEmpregador").SetText(h.EmployerID)
	ident.CreateElement(opPrefix + ":ideTransmissor").SetText(h.TransmitterID)

	bodyEl := env.CreateElement(envPrefix + ":Body")
	opEl := bodyEl.CreateElement(opPrefix + ":" + method)

	if strings.TrimSpace(body) != "" {
		frag := etree.NewDocument()
		if err := frag.ReadFromString(body); err != nil {
			return nil, failure.Wrap(failure.InvalidXML, err, "request body is not well-formed XML")
		}
		for _, tok := range frag.Child {
			switch t := tok.(type) {
			case *etree.ProcInst:
				// drop the fragment's own XML declaration
			case *etree.Element:
				opEl.AddChild(t.Copy())
			case *etree.CharData:
				if strings.TrimSpace(t.Data) != "" {
					opEl.CreateText(t.Data)
				}
			}
		}
	}

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, failure.Wrap(failure.InvalidXML, err, "serialize envelope")
	}
	return out, nil
}
