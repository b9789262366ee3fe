package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"cipherchat/internal/domain"
)

// Encode serialises r with its type discriminator.
func Encode(r Record) ([]byte, error) {
	var v any
	switch rec := r.(type) {
	case IdentityAssigned:
		v = struct {
			Type string `json:"type"`
			IdentityAssigned
		}{TypeClientID, rec}
	case PeerList:
		if rec.Clients == nil {
			rec.Clients = []domain.ConnectionID{}
		}
		v = struct {
			Type string `json:"type"`
			PeerList
		}{TypeClientList, rec}
	case PublicKeyAnnounce:
		v = struct {
			Type string `json:"type"`
			PublicKeyAnnounce
		}{TypePublicKey, rec}
	case EncryptedMessage:
		v = struct {
			Type string `json:"type"`
			EncryptedMessage
		}{TypeEncryptedMessage, rec}
	case ErrorNotice:
		v = struct {
			Type string `json:"type"`
			ErrorNotice
		}{TypeError, rec}
	case nil:
		return nil, errors.New("wire: cannot encode nil record")
	default:
		return nil, fmt.Errorf("wire: cannot encode %T", r)
	}
	return json.Marshal(v)
}

// MustEncode is Encode for records built by the relay itself, which always
// encode.
func MustEncode(r Record) []byte {
	b, err := Encode(r)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses the first JSON object in data into a concrete Record.
func Decode(data []byte) (Record, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil {
		return nil, &MalformedRecordError{Err: err}
	}

	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, &MalformedRecordError{Field: "type", Err: err}
	}
	if head.Type == nil || *head.Type == "" {
		return nil, &MalformedRecordError{Field: "type", Err: errors.New("missing")}
	}

	typ := *head.Type
	switch typ {
	case TypeClientID:
		var r IdentityAssigned
		if err := unmarshal(typ, raw, &r); err != nil {
			return nil, err
		}
		if r.ID == "" {
			return nil, missing(typ, "id")
		}
		return r, nil

	case TypeClientList:
		var r struct {
			Clients *[]domain.ConnectionID `json:"clients"`
		}
		if err := unmarshal(typ, raw, &r); err != nil {
			return nil, err
		}
		if r.Clients == nil {
			return nil, missing(typ, "clients")
		}
		return PeerList{Clients: *r.Clients}, nil

	case TypePublicKey:
		var r PublicKeyAnnounce
		if err := unmarshal(typ, raw, &r); err != nil {
			return nil, err
		}
		if r.PublicKey == nil {
			return nil, missing(typ, "publicKey")
		}
		return r, nil

	case TypeEncryptedMessage:
		var r EncryptedMessage
		if err := unmarshal(typ, raw, &r); err != nil {
			return nil, err
		}
		switch {
		case r.From == "" && r.To == "":
			return nil, missing(typ, "to")
		case r.IV == nil:
			return nil, missing(typ, "iv")
		case r.Ciphertext == nil:
			return nil, missing(typ, "ciphertext")
		case r.HMAC == nil:
			return nil, missing(typ, "hmac")
		}
		return r, nil

	case TypeError:
		var r ErrorNotice
		if err := unmarshal(typ, raw, &r); err != nil {
			return nil, err
		}
		if r.Code == "" {
			return nil, missing(typ, "code")
		}
		return r, nil
	}
	return nil, &UnknownTypeError{Type: typ}
}

func unmarshal(typ string, raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		var field string
		var ute *json.UnmarshalTypeError
		if errors.As(err, &ute) {
			field = ute.Field
		}
		return &MalformedRecordError{Type: typ, Field: field, Err: err}
	}
	return nil
}

func missing(typ, field string) error {
	return &MalformedRecordError{Type: typ, Field: field, Err: errors.New("missing")}
}
