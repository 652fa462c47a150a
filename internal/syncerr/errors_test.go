package syncerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	err := Newf(RenderFailure, "write %s: denied", "a.xlsx").WithContext("purchases", "Visa/2024_03", "")

	assert.Equal(t, "render_failure entity=purchases key=Visa/2024_03: write a.xlsx: denied", err.Error())
	assert.Equal(t, "write a.xlsx: denied", err.Message())
}

func TestKindOf_WrappedChain(t *testing.T) {
	base := New(MalformedLedger, errors.New("missing sentinel"))
	wrapped := fmt.Errorf("merge: %w", base)

	assert.Equal(t, MalformedLedger, KindOf(wrapped))
	assert.True(t, Is(wrapped, MalformedLedger))
	assert.False(t, Is(wrapped, RenderFailure))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.False(t, Is(nil, MalformedLedger))
}

func TestAs_Fallback(t *testing.T) {
	plain := errors.New("boom")
	got := As(plain, RemoteMirrorFailure)

	assert.Equal(t, RemoteMirrorFailure, got.Kind)
	assert.ErrorIs(t, got, plain)

	typed := New(AttachmentUnavailable, plain)
	assert.Same(t, typed, As(typed, RemoteMirrorFailure))
}

func TestKind_Fatal(t *testing.T) {
	assert.True(t, SourceUnavailable.Fatal())
	assert.True(t, SchemaMisconfigured.Fatal())
	assert.False(t, MalformedLedger.Fatal())
	assert.False(t, AttachmentUnavailable.Fatal())
	assert.False(t, RemoteMirrorFailure.Fatal())
	assert.False(t, RenderFailure.Fatal())
}

func TestWithContext_DoesNotMutate(t *testing.T) {
	orig := New(AttachmentUnavailable, errors.New("404"))
	annotated := orig.WithContext("expenses", "Max/2024_01", "7")

	assert.Empty(t, orig.Entity)
	assert.Equal(t, "7", annotated.RecordID)
}

func TestError_JSONCarriesMessage(t *testing.T) {
	err := New(AttachmentUnavailable, errors.New(`fetch "r/1.png": object not found`)).
		WithContext("purchases", "Visa/2024_03", "1")

	data, mErr := json.Marshal(err)
	require.NoError(t, mErr)
	assert.JSONEq(t, `{
		"kind": "attachment_unavailable",
		"entity": "purchases",
		"key": "Visa/2024_03",
		"record_id": "1",
		"message": "fetch \"r/1.png\": object not found"
	}`, string(data))

	var back Error
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, err.Error(), back.Error())
	assert.Equal(t, AttachmentUnavailable, back.Kind)
}
