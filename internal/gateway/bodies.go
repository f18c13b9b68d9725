package gateway

import (
	"time"

	"github.com/beevik/etree"

	"github.com/vietddude/registrygw/internal/core/domain"
	"github.com/vietddude/registrygw/internal/core/failure"
)

// Schema namespaces of the request documents carried inside the SOAP body.
const (
	schemaConsultEmployer = "http://www.esocial.gov.br/schema/consulta/identificador-cadastro/v1_0_0"
	schemaConsultEvents   = "http://www.esocial.gov.br/schema/consulta/eventos/v1_0_0"
	schemaConsultIDs      = "http://www.esocial.gov.br/schema/consulta/identificadores-eventos/v1_0_0"
	schemaConsultBatch    = "http://www.esocial.gov.br/schema/lote/eventos/envio/consulta/retornoProcessamento/v1_0_0"
	schemaSubmitBatch     = "http://www.esocial.gov.br/schema/lote/eventos/envio/v1_1_1"
)

const dateLayout = "2006-01-02"

// inscriptionType is 1 for a CNPJ (14 digits) and 2 for a CPF.
func inscriptionType(id string) string {
	if len(id) == 14 {
		return "1"
	}
	return "2"
}

func newDocument(schema, root string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	esocial := doc.CreateElement("eSocial")
	esocial.CreateAttr("xmlns", schema)
	return doc, esocial.CreateElement(root)
}

func addIdentity(el *etree.Element, tag, id string) {
	ide := el.CreateElement(tag)
	ide.CreateElement("tpInsc").SetText(inscriptionType(id))
	ide.CreateElement("nrInsc").SetText(id)
}

func render(doc *etree.Document) (string, error) {
	s, err := doc.WriteToString()
	if err != nil {
		return "", failure.Wrap(failure.InvalidXML, err, "render request body")
	}
	return s, nil
}

func employerBody(employerID string) (string, error) {
	doc, root := newDocument(schemaConsultEmployer, "consultaIdentCadastro")
	addIdentity(root, "ideEmpregador", employerID)
	return render(doc)
}

func eventsBody(schema, rootTag, employerID string, q domain.EventQuery) (string, error) {
	doc, root := newDocument(schema, rootTag)
	addIdentity(root, "ideEmpregador", employerID)
	if q.EventType != "" {
		root.CreateElement("tpEvt").SetText(q.EventType)
	}
	if !q.From.IsZero() {
		root.CreateElement("dtIni").SetText(q.From.Format(dateLayout))
	}
	if !q.To.IsZero() {
		root.CreateElement("dtFim").SetText(q.To.Format(dateLayout))
	}
	return render(doc)
}

func batchStatusBody(protocol string) (string, error) {
	doc, root := newDocument(schemaConsultBatch, "consultaLoteEventos")
	root.CreateElement("protocoloEnvio").SetText(protocol)
	return render(doc)
}

// submitBody wraps caller-supplied event documents into an envioLoteEventos
// batch. Malformed events are InvalidXML.
func submitBody(employerID, transmitterID, eventsXML string) (string, error) {
	events := etree.NewDocument()
	if err := events.ReadFromString("<eventos>" + eventsXML + "</eventos>"); err != nil {
		return "", failure.Wrap(failure.InvalidXML, err, "malformed events")
	}
	if len(events.Root().ChildElements()) == 0 {
		return "", failure.New(failure.InvalidEvent, "batch has no events")
	}

	doc, root := newDocument(schemaSubmitBatch, "envioLoteEventos")
	root.CreateAttr("grupo", "1")
	addIdentity(root, "ideEmpregador", employerID)
	addIdentity(root, "ideTransmissor", transmitterID)
	root.AddChild(events.Root())
	return render(doc)
}

func queryKey(q domain.EventQuery) string {
	return q.EventType + "|" + formatDate(q.From) + "|" + formatDate(q.To)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
