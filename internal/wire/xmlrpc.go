package wire

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// xmlrpcValue/xmlrpcMember/xmlrpcStruct/xmlrpcArray mirror the XML-RPC value
// grammar closely enough to marshal Go values into it and parse responses
// back out, following the teacher's encoding/xml struct-tag idiom used for
// EDMX parsing in internal/metadata/parser.go — there is no third-party
// XML-RPC library anywhere in the example pack (see DESIGN.md), so this
// wire format is built directly on encoding/xml.
type xmlrpcMethodCall struct {
	XMLName    xml.Name      `xml:"methodCall"`
	MethodName string        `xml:"methodName"`
	Params     []xmlrpcParam `xml:"params>param"`
}

type xmlrpcParam struct {
	Value xmlrpcValue `xml:"value"`
}

type xmlrpcMethodResponse struct {
	XMLName xml.Name      `xml:"methodResponse"`
	Params  []xmlrpcParam `xml:"params>param"`
	Fault   *xmlrpcFault  `xml:"fault"`
}

type xmlrpcFault struct {
	Value xmlrpcValue `xml:"value"`
}

type xmlrpcValue struct {
	Int     *string        `xml:"int"`
	I4      *string        `xml:"i4"`
	Boolean *string        `xml:"boolean"`
	Double  *string        `xml:"double"`
	String  *string        `xml:"string"`
	Raw     string         `xml:",chardata"`
	Struct  *xmlrpcStruct  `xml:"struct"`
	Array   *xmlrpcArray   `xml:"array"`
	Nil     *struct{}      `xml:"nil"`
}

type xmlrpcStruct struct {
	Members []xmlrpcMember `xml:"member"`
}

type xmlrpcMember struct {
	Name  string      `xml:"name"`
	Value xmlrpcValue `xml:"value"`
}

type xmlrpcArray struct {
	Values []xmlrpcValue `xml:"data>value"`
}

// marshalXMLRPCValue encodes a Go value (string, bool, int, float64, []any,
// map[string]any, nil) into the <value> element tree.
func marshalXMLRPCValue(v interface{}) xmlrpcValue {
	switch t := v.(type) {
	case nil:
		return xmlrpcValue{Nil: &struct{}{}}
	case bool:
		s := "0"
		if t {
			s = "1"
		}
		return xmlrpcValue{Boolean: &s}
	case int:
		s := strconv.Itoa(t)
		return xmlrpcValue{Int: &s}
	case int64:
		s := strconv.FormatInt(t, 10)
		return xmlrpcValue{Int: &s}
	case float64:
		s := strconv.FormatFloat(t, 'f', -1, 64)
		return xmlrpcValue{Double: &s}
	case string:
		s := t
		return xmlrpcValue{String: &s}
	case []interface{}:
		arr := &xmlrpcArray{}
		for _, item := range t {
			arr.Values = append(arr.Values, marshalXMLRPCValue(item))
		}
		return xmlrpcValue{Array: arr}
	case map[string]interface{}:
		st := &xmlrpcStruct{}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			st.Members = append(st.Members, xmlrpcMember{Name: k, Value: marshalXMLRPCValue(t[k])})
		}
		return xmlrpcValue{Struct: st}
	default:
		s := fmt.Sprintf("%v", t)
		return xmlrpcValue{String: &s}
	}
}

// unmarshalXMLRPCValue is the inverse conversion, producing plain Go values
// (string/bool/int/float64/[]interface{}/map[string]interface{}/nil) so
// callers never need to see the XML-RPC tag shape.
func unmarshalXMLRPCValue(v xmlrpcValue) interface{} {
	switch {
	case v.Nil != nil:
		return nil
	case v.Boolean != nil:
		return *v.Boolean == "1"
	case v.Int != nil:
		n, _ := strconv.Atoi(*v.Int)
		return n
	case v.I4 != nil:
		n, _ := strconv.Atoi(*v.I4)
		return n
	case v.Double != nil:
		f, _ := strconv.ParseFloat(*v.Double, 64)
		return f
	case v.String != nil:
		return *v.String
	case v.Struct != nil:
		out := make(map[string]interface{}, len(v.Struct.Members))
		for _, m := range v.Struct.Members {
			out[m.Name] = unmarshalXMLRPCValue(m.Value)
		}
		return out
	case v.Array != nil:
		out := make([]interface{}, 0, len(v.Array.Values))
		for _, item := range v.Array.Values {
			out = append(out, unmarshalXMLRPCValue(item))
		}
		return out
	default:
		return v.Raw
	}
}

// encodeXMLRPCCall builds a full XML-RPC request body for methodName called
// with params in order.
func encodeXMLRPCCall(methodName string, params ...interface{}) ([]byte, error) {
	call := xmlrpcMethodCall{MethodName: methodName}
	for _, p := range params {
		call.Params = append(call.Params, xmlrpcParam{Value: marshalXMLRPCValue(p)})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(call); err != nil {
		return nil, fmt.Errorf("encode xml-rpc call: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeXMLRPCResponse parses a methodResponse body into a Go value, or
// returns the fault struct as an error if the server raised one.
func decodeXMLRPCResponse(body []byte) (interface{}, error) {
	var resp xmlrpcMethodResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode xml-rpc response: %w", err)
	}

	if resp.Fault != nil {
		faultMap, _ := unmarshalXMLRPCValue(resp.Fault.Value).(map[string]interface{})
		text := fmt.Sprintf("%v", faultMap["faultString"])
		// Odoo puts the full server traceback in faultString; the last
		// exception line carries the class and human message.
		if strings.Contains(text, "Traceback") {
			return nil, newFault("", "", text, "", "")
		}
		return nil, newFault(text, "", "", "", "")
	}

	if len(resp.Params) == 0 {
		return nil, nil
	}
	return unmarshalXMLRPCValue(resp.Params[0].Value), nil
}
