// Package twiml builds provider call-control documents.
package twiml

import (
	"encoding/xml"
	"strings"
)

const ContentType = "text/xml"

// Response root document; verbs are rendered in the order they were added
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []interface{}
}

type Say struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type Dial struct {
	XMLName                       xml.Name `xml:"Dial"`
	Action                        string   `xml:"action,attr,omitempty"`
	Method                        string   `xml:"method,attr,omitempty"`
	Timeout                       int      `xml:"timeout,attr,omitempty"`
	AnswerOnBridge                bool     `xml:"answerOnBridge,attr,omitempty"`
	Record                        string   `xml:"record,attr,omitempty"`
	RecordingStatusCallback       string   `xml:"recordingStatusCallback,attr,omitempty"`
	RecordingStatusCallbackMethod string   `xml:"recordingStatusCallbackMethod,attr,omitempty"`
	Numbers                       []Number
}

type Number struct {
	XMLName              xml.Name `xml:"Number"`
	StatusCallback       string   `xml:"statusCallback,attr,omitempty"`
	StatusCallbackEvent  string   `xml:"statusCallbackEvent,attr,omitempty"`
	StatusCallbackMethod string   `xml:"statusCallbackMethod,attr,omitempty"`
	Value                string   `xml:",chardata"`
}

type Record struct {
	XMLName   xml.Name `xml:"Record"`
	Action    string   `xml:"action,attr,omitempty"`
	Method    string   `xml:"method,attr,omitempty"`
	MaxLength int      `xml:"maxLength,attr,omitempty"`
	PlayBeep  bool     `xml:"playBeep,attr,omitempty"`
}

type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

func NewResponse() *Response {
	return &Response{}
}

func (r *Response) Say(text string) *Response {
	r.Verbs = append(r.Verbs, Say{Text: text})
	return r
}

func (r *Response) Dial(d Dial) *Response {
	r.Verbs = append(r.Verbs, d)
	return r
}

func (r *Response) Record(rec Record) *Response {
	r.Verbs = append(r.Verbs, rec)
	return r
}

func (r *Response) Hangup() *Response {
	r.Verbs = append(r.Verbs, Hangup{})
	return r
}

// AddNumber appends a dial target; events are space separated as the provider expects
func (d *Dial) AddNumber(phone, statusCallback string, events ...string) {
	n := Number{Value: phone}
	if statusCallback != "" {
		n.StatusCallback = statusCallback
		n.StatusCallbackMethod = "POST"
		n.StatusCallbackEvent = strings.Join(events, " ")
	}
	d.Numbers = append(d.Numbers, n)
}

// Marshal renders the document with the XML header
func (r *Response) Marshal() ([]byte, error) {
	out, err := xml.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// String renders the document, returning an empty response on marshal failure
func (r *Response) String() string {
	out, err := r.Marshal()
	if err != nil {
		return xml.Header + "<Response></Response>"
	}
	return string(out)
}
