package catalog

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DecodeID parses a raw identifier. The value must be a valid ObjectID and
// its canonical hex encoding must equal raw exactly, which rejects
// upper-case hex and other loosely coerced forms.
func DecodeID(raw string) (primitive.ObjectID, error) {
	return decodeAt(raw, -1)
}

// DecodeIDs decodes every element independently and reports the first
// failing index.
func DecodeIDs(raw []string) ([]primitive.ObjectID, error) {
	ids := make([]primitive.ObjectID, 0, len(raw))
	for i, r := range raw {
		id, err := decodeAt(r, i)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// DecodeOptionalID returns nil for a missing value or the literal "null".
func DecodeOptionalID(raw *string) (*primitive.ObjectID, error) {
	if raw == nil || *raw == "null" {
		return nil, nil
	}
	id, err := DecodeID(*raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func decodeAt(raw string, index int) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil || id.Hex() != raw {
		return primitive.NilObjectID, &InvalidIDError{Value: raw, Index: index}
	}
	return id, nil
}
