package mqtterr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// codedError mimics an engine failure carrying a reason code.
type codedError struct {
	code int
	msg  string
}

func (e *codedError) Error() string   { return e.msg }
func (e *codedError) ReasonCode() int { return e.code }

// =============================================================================
// Lookup Tests
// =============================================================================

func TestLookup(t *testing.T) {
	tests := []struct {
		code   int
		want   Kind
		wantOK bool
	}{
		{0, ClientException, true},
		{3, BrokerUnavailable, true},
		{4, AuthenticationFailed, true},
		{5, NotAuthorized, true},
		{80, SubscribeFailed, true},
		{32000, ClientTimeout, true},
		{32100, ClientAlreadyConnected, true},
		{32103, ServerConnectError, true},
		{32104, ClientNotConnected, true},
		{32110, ConnectInProgress, true},
		{32200, PersistenceInUse, true},
		{32203, DisconnectedBufferFull, true},
		{50002, MalformedPacket, true},
		{50004, InvalidTopicAlias, true},
		{7, Unknown, false},
		{135, Unknown, false},
		{-1, Unknown, false},
		{99999, Unknown, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("code %d", tt.code), func(t *testing.T) {
			got, ok := Lookup(tt.code)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookupIsPure(t *testing.T) {
	for code := -5; code < 60000; code += 7 {
		first, firstOK := Lookup(code)
		second, secondOK := Lookup(code)
		require.Equal(t, first, second, "code %d", code)
		require.Equal(t, firstOK, secondOK, "code %d", code)
	}
}

func TestKindStringAndScope(t *testing.T) {
	assert.Equal(t, "CLIENT_NOT_CONNECTED", ClientNotConnected.String())
	assert.Equal(t, "UNKNOWN", Unknown.String())
	assert.Equal(t, "KIND(12345)", Kind(12345).String())

	assert.Equal(t, ScopeModern, MalformedPacket.Scope())
	assert.Equal(t, ScopeLegacy, InvalidProtocolVersion.Scope())
	assert.Equal(t, ScopeInternal, ConnectInProgress.Scope())
	assert.Equal(t, ScopeAny, NotAuthorized.Scope())
}

// =============================================================================
// Translate Tests
// =============================================================================

func TestTranslateMappedCode(t *testing.T) {
	cause := &codedError{code: 5, msg: "not authorised"}

	err := Translate(cause, "An error occurred while connecting.")

	var unified *Error
	require.ErrorAs(t, err, &unified)
	assert.Equal(t, NotAuthorized, unified.Kind)
	assert.Equal(t, 5, unified.Code)
	assert.Equal(t, "not authorised", unified.Message)
	assert.ErrorIs(t, err, NotAuthorized)
	assert.ErrorIs(t, err, cause)
}

func TestTranslateUnmappedCode(t *testing.T) {
	cause := &codedError{code: 151, msg: "quota exceeded"}

	err := Translate(cause, "An error occurred while publishing.")

	var unified *Error
	require.ErrorAs(t, err, &unified)
	assert.Equal(t, Unknown, unified.Kind)
	assert.Equal(t, 151, unified.Code, "raw code must be preserved")
	assert.ErrorIs(t, err, cause)
}

func TestTranslateDefaultMessage(t *testing.T) {
	err := Translate(&codedError{code: 3}, "An error occurred while connecting.")

	var unified *Error
	require.ErrorAs(t, err, &unified)
	assert.Equal(t, "An error occurred while connecting.", unified.Message)
}

func TestTranslatePassThrough(t *testing.T) {
	original := New(ClientNotConnected, "not connected")
	assert.Same(t, original, Translate(original, "ignored"))
	assert.NoError(t, Translate(nil, "ignored"))
}

func TestTranslateUntyped(t *testing.T) {
	assert.Equal(t, ClientTimeout, KindOf(Translate(context.DeadlineExceeded, "")))
	assert.Equal(t, ClientClosed, KindOf(Translate(context.Canceled, "")))
	assert.Equal(t, ClientException, KindOf(Translate(errors.New("boom"), "")))
}

func TestTranslateWrappedCoder(t *testing.T) {
	wrapped := fmt.Errorf("dial: %w", &codedError{code: 32103, msg: "refused"})

	assert.Equal(t, ServerConnectError, KindOf(Translate(wrapped, "")))
}

func TestErrorString(t *testing.T) {
	err := New(ClientNotConnected, "client is not connected")
	assert.Equal(t, "mqtt: CLIENT_NOT_CONNECTED (32104): client is not connected", err.Error())
}

func TestErrorStringCarriesPrefixOnce(t *testing.T) {
	unknown := Translate(&codedError{code: 151, msg: "quota exceeded"}, "")
	assert.Equal(t, "mqtt: UNKNOWN (151): quota exceeded", unknown.Error())

	wrapped := fmt.Errorf("publish: %w", New(ClientTimeout, "no ack"))
	assert.Equal(t, "publish: mqtt: CLIENT_TIMEOUT (32000): no ack", wrapped.Error())

	// Kind on its own still reads as an error.
	assert.Equal(t, "mqtt: NOT_AUTHORIZED", NotAuthorized.Error())
}
