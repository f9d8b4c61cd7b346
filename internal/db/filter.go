package db

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FilterBuilder helps build MongoDB filters fluently
type FilterBuilder struct {
	filter bson.M
}

// NewFilter creates a new FilterBuilder
func NewFilter() *FilterBuilder {
	return &FilterBuilder{filter: bson.M{}}
}

// Eq adds an equality condition
func (f *FilterBuilder) Eq(field string, value interface{}) *FilterBuilder {
	f.filter[field] = value
	return f
}

// Ne adds a not-equal condition
func (f *FilterBuilder) Ne(field string, value interface{}) *FilterBuilder {
	f.filter[field] = bson.M{"$ne": value}
	return f
}

// Lt adds a less-than condition
func (f *FilterBuilder) Lt(field string, value interface{}) *FilterBuilder {
	f.filter[field] = bson.M{"$lt": value}
	return f
}

// In adds an $in condition (value in array)
func (f *FilterBuilder) In(field string, values interface{}) *FilterBuilder {
	f.filter[field] = bson.M{"$in": values}
	return f
}

// ElemMatch matches array fields holding an element that satisfies cond
func (f *FilterBuilder) ElemMatch(field string, cond bson.M) *FilterBuilder {
	f.filter[field] = bson.M{"$elemMatch": cond}
	return f
}

// NotElemMatch matches array fields holding no element that satisfies cond
func (f *FilterBuilder) NotElemMatch(field string, cond bson.M) *FilterBuilder {
	f.filter[field] = bson.M{"$not": bson.M{"$elemMatch": cond}}
	return f
}

// ObjectID adds an ObjectID filter. Malformed ids match nothing.
func (f *FilterBuilder) ObjectID(field string, id string) *FilterBuilder {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		objectID = primitive.NilObjectID
	}
	f.filter[field] = objectID
	return f
}

// ObjectIDs adds an $in filter over hex ids, skipping malformed ones
func (f *FilterBuilder) ObjectIDs(field string, ids []string) *FilterBuilder {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	f.filter[field] = bson.M{"$in": oids}
	return f
}

// NotExpired keeps documents whose field is unset or later than at
func (f *FilterBuilder) NotExpired(field string, at interface{}) *FilterBuilder {
	return f.Or(
		bson.M{field: nil},
		bson.M{field: bson.M{"$gt": at}},
	)
}

// Or combines multiple filters with OR
func (f *FilterBuilder) Or(filters ...bson.M) *FilterBuilder {
	if len(filters) > 0 {
		f.filter["$or"] = filters
	}
	return f
}

// Build returns the final bson.M filter
func (f *FilterBuilder) Build() bson.M {
	return f.filter
}
