package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lips-server/internal/models"
)

func TestParseEventPayload_Seeded(t *testing.T) {
	raw := json.RawMessage(`{"slot":"verb","placeholder":"[[VERB_1::verb]]","prompt":"Verb","description":"Action word","example":"sprint"}`)

	payload, err := models.ParseEventPayload(models.EventTurnSeeded, raw)

	require.NoError(t, err)
	require.NotNil(t, payload.Seeded)
	assert.Nil(t, payload.Submission)
	assert.Nil(t, payload.Custom)
	assert.Equal(t, "verb", payload.Seeded.Slot)
	assert.Equal(t, "[[VERB_1::verb]]", payload.Seeded.Placeholder)
}

func TestParseEventPayload_Submission(t *testing.T) {
	raw := json.RawMessage(`{"handle":"@nova"}`)

	for _, eventType := range []models.EventType{models.EventSubmitted, models.EventAutoFilled} {
		payload, err := models.ParseEventPayload(eventType, raw)
		require.NoError(t, err)
		require.NotNil(t, payload.Submission)
		require.NotNil(t, payload.Submission.Handle)
		assert.Equal(t, "@nova", *payload.Submission.Handle)
	}
}

func TestParseEventPayload_UnknownTypeGoesToCustom(t *testing.T) {
	raw := json.RawMessage(`{"reaction":"fire"}`)

	payload, err := models.ParseEventPayload(models.EventType("player_reaction"), raw)

	require.NoError(t, err)
	require.NotNil(t, payload.Custom)
	assert.Equal(t, "fire", payload.Custom["reaction"])
}

func TestParseEventPayload_EmptyRaw(t *testing.T) {
	payload, err := models.ParseEventPayload(models.EventSubmitted, nil)

	require.NoError(t, err)
	require.NotNil(t, payload.Custom)
	assert.Empty(t, payload.Custom)
}

func TestParseEventPayload_InvalidJSON(t *testing.T) {
	_, err := models.ParseEventPayload(models.EventTurnSeeded, json.RawMessage(`{broken`))
	assert.Error(t, err)
}

func TestEventPayload_MarshalJSON(t *testing.T) {
	// Пустое объединение сериализуется в пустой объект
	empty, err := json.Marshal(models.EventPayload{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(empty))

	handle := "@nova"
	sub, err := json.Marshal(models.EventPayload{Submission: &models.SubmissionPayload{Handle: &handle}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"handle":"@nova"}`, string(sub))

	custom, err := json.Marshal(models.CustomPayload(map[string]any{"emoji": "🎉"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"emoji":"🎉"}`, string(custom))
}

func TestCustomPayload_NilMap(t *testing.T) {
	payload := models.CustomPayload(nil)
	require.NotNil(t, payload.Custom)
	assert.Empty(t, payload.Custom)
}
