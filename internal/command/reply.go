package command

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
)

// ReplyKind tags the variant carried by a Reply, mirroring the
// backend's own reply tree (spec.md §3).
type ReplyKind int

const (
	ReplyNil ReplyKind = iota
	ReplyInteger
	ReplyBytes
	ReplyStatus
	ReplyOkay
	ReplyArray
)

// Reply is the typed backend reply, a tagged union over Nil, Integer,
// Bytes, Status, Okay and Array. Exactly one of the typed fields is
// meaningful for a given Kind.
type Reply struct {
	Kind    ReplyKind
	Integer int64
	Bytes   []byte
	Status  string
	Array   []Reply
}

func NilReply() Reply                { return Reply{Kind: ReplyNil} }
func IntegerReply(n int64) Reply     { return Reply{Kind: ReplyInteger, Integer: n} }
func BytesReply(b []byte) Reply      { return Reply{Kind: ReplyBytes, Bytes: b} }
func StatusReply(s string) Reply     { return Reply{Kind: ReplyStatus, Status: s} }
func OkayReply() Reply               { return Reply{Kind: ReplyOkay} }
func ArrayReply(items []Reply) Reply { return Reply{Kind: ReplyArray, Array: items} }

// value is the structured value a Reply converts to before
// serialization: nil, int64, string, []byte (non-UTF-8 binary, retained
// for MSGPACK), or []value.
type value struct {
	isNil   bool
	integer int64
	isInt   bool
	str     string
	isStr   bool
	binary  []byte
	isBin   bool
	array   []value
	isArray bool
}

// toValue converts a typed Reply to its structured value per spec.md
// §4.2. Bytes that are valid UTF-8 become strings; otherwise they are
// retained as opaque binary so MSGPACK can emit them untouched.
func toValue(r Reply) value {
	switch r.Kind {
	case ReplyNil:
		return value{isNil: true}
	case ReplyInteger:
		return value{isInt: true, integer: r.Integer}
	case ReplyBytes:
		if utf8.Valid(r.Bytes) {
			return value{isStr: true, str: string(r.Bytes)}
		}
		return value{isBin: true, binary: r.Bytes}
	case ReplyStatus:
		return value{isStr: true, str: r.Status}
	case ReplyOkay:
		return value{isStr: true, str: "OK"}
	case ReplyArray:
		items := make([]value, len(r.Array))
		for i, item := range r.Array {
			items[i] = toValue(item)
		}
		return value{isArray: true, array: items}
	default:
		return value{isNil: true}
	}
}

// MarshalJSON implements lossy-UTF-8 JSON rendering of binary values
// (spec.md §9 open question (a)): a replacement character is
// substituted for invalid byte sequences rather than failing to encode.
func (v value) MarshalJSON() ([]byte, error) {
	switch {
	case v.isNil:
		return []byte("null"), nil
	case v.isInt:
		return []byte(strconv.FormatInt(v.integer, 10)), nil
	case v.isStr:
		return json.Marshal(v.str)
	case v.isBin:
		return json.Marshal(strings.ToValidUTF8(string(v.binary), "�"))
	case v.isArray:
		return json.Marshal(v.array)
	default:
		return []byte("null"), nil
	}
}

// EncodeMsgpack implements msgpack.CustomEncoder, emitting binary
// values as MessagePack's native binary type rather than lossy text.
func (v value) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch {
	case v.isNil:
		return enc.EncodeNil()
	case v.isInt:
		return enc.EncodeInt64(v.integer)
	case v.isStr:
		return enc.EncodeString(v.str)
	case v.isBin:
		return enc.EncodeBytes(v.binary)
	case v.isArray:
		if err := enc.EncodeArrayLen(len(v.array)); err != nil {
			return err
		}
		for _, item := range v.array {
			if err := enc.Encode(item); err != nil {
				return err
			}
		}
		return nil
	default:
		return enc.EncodeNil()
	}
}

// rawString renders v per the RAW format's scalar/array rules
// (spec.md §4.2): scalars use their lexical form, nil is empty, arrays
// join with "\n" and a nested array collapses one level by joining its
// own elements with "\n" before being joined into the parent.
func rawString(v value) string {
	switch {
	case v.isNil:
		return ""
	case v.isInt:
		return strconv.FormatInt(v.integer, 10)
	case v.isStr:
		return v.str
	case v.isBin:
		return strings.ToValidUTF8(string(v.binary), "�")
	case v.isArray:
		parts := make([]string, len(v.array))
		for i, item := range v.array {
			parts[i] = rawString(item)
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

// EncodedReply is the serialized response body plus the content type
// it must be served with.
type EncodedReply struct {
	Body        []byte
	ContentType string
}

// Encode renders reply under the request's selected format, wrapping
// JSON/MSGPACK under the command name as `{"<name>": <value>}` per
// spec.md §4.2.
func Encode(name string, reply Reply, format Format, callback string) (EncodedReply, error) {
	v := toValue(reply)

	switch format {
	case FormatRAW:
		return EncodedReply{Body: []byte(rawString(v)), ContentType: "text/plain"}, nil

	case FormatMSGPACK:
		body, err := msgpack.Marshal(map[string]value{name: v})
		if err != nil {
			return EncodedReply{}, err
		}
		return EncodedReply{Body: body, ContentType: "application/x-msgpack"}, nil

	default: // FormatJSON
		body, err := json.Marshal(map[string]value{name: v})
		if err != nil {
			return EncodedReply{}, err
		}
		contentType := "application/json"
		if callback != "" {
			body = []byte(fmt.Sprintf("%s(%s)", callback, body))
			contentType = "application/javascript; charset=utf-8"
		}
		return EncodedReply{Body: body, ContentType: contentType}, nil
	}
}
