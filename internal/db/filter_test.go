package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestFilterBuilder(t *testing.T) {
	t.Run("happy path - comparison operators", func(t *testing.T) {
		got := NewFilter().
			Eq("type", "group").
			Ne("deleted", true).
			Lt("created_at", 10).
			In("status", []string{"a", "b"}).
			Build()

		assert.Equal(t, bson.M{
			"type":       "group",
			"deleted":    bson.M{"$ne": true},
			"created_at": bson.M{"$lt": 10},
			"status":     bson.M{"$in": []string{"a", "b"}},
		}, got)
	})

	t.Run("happy path - element matches", func(t *testing.T) {
		got := NewFilter().
			ElemMatch("participants", bson.M{"$eq": "u1"}).
			NotElemMatch("read_by", bson.M{"user_id": "u1"}).
			Build()

		assert.Equal(t, bson.M{"$elemMatch": bson.M{"$eq": "u1"}}, got["participants"])
		assert.Equal(t, bson.M{"$not": bson.M{"$elemMatch": bson.M{"user_id": "u1"}}}, got["read_by"])
	})

	t.Run("happy path - object ids", func(t *testing.T) {
		oid := primitive.NewObjectID()

		got := NewFilter().
			ObjectID("_id", oid.Hex()).
			ObjectIDs("conversation_id", []string{oid.Hex(), "nope"}).
			Build()

		assert.Equal(t, oid, got["_id"])
		assert.Equal(t, bson.M{"$in": []primitive.ObjectID{oid}}, got["conversation_id"])
	})

	t.Run("sad path - malformed object id matches nothing", func(t *testing.T) {
		got := NewFilter().ObjectID("_id", "not-hex").Build()
		assert.Equal(t, primitive.NilObjectID, got["_id"])
	})

	t.Run("happy path - not expired", func(t *testing.T) {
		at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

		got := NewFilter().NotExpired("expires_at", at).Build()

		assert.Equal(t, []bson.M{
			{"expires_at": nil},
			{"expires_at": bson.M{"$gt": at}},
		}, got["$or"])
	})

	t.Run("sad path - empty or is ignored", func(t *testing.T) {
		got := NewFilter().Or().Build()
		assert.Empty(t, got)
	})
}
