package gwerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_BuildsDispatchError(t *testing.T) {
	err := New(KindNotFound, "engram %s missing", "e1")
	assert.Equal(t, KindNotFound, err.Kind)
	assert.Equal(t, "engram e1 missing", err.Message)
	assert.Equal(t, "not_found: engram e1 missing", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestNew_EmptyMessageFallsBackToKind(t *testing.T) {
	err := &DispatchError{Kind: KindInternal}
	assert.Equal(t, "internal", err.Error())
}

func TestWrap_PreservesCauseForUnwrapping(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindInternal, cause, "dispatch failed")
	assert.Equal(t, "dispatch failed", err.Message)
	assert.Same(t, cause, err.Unwrap())
	assert.ErrorIs(t, err, cause)
}

func TestKind_HTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindInvalidArguments, 400},
		{KindUnauthenticated, 401},
		{KindForbidden, 403},
		{KindToolDisabledInSandbox, 403},
		{KindUnknownTool, 404},
		{KindNotFound, 404},
		{KindConflict, 409},
		{KindRateLimited, 429},
		{KindTimeout, 504},
		{KindDependencyUnavailable, 500},
		{KindSkillUnavailable, 500},
		{KindInternal, 500},
		{Kind("unmapped"), 500},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.kind.HTTPStatus())
		})
	}
}

func TestKind_JSONRPCCode(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindInvalidArguments, -32602},
		{KindUnknownTool, -32001},
		{KindNotFound, -32001},
		{KindToolDisabledInSandbox, -32002},
		{KindSkillUnavailable, -32003},
		{KindTimeout, -32004},
		{KindConflict, -32005},
		{KindRateLimited, -32006},
		{KindUnauthenticated, -32007},
		{KindForbidden, -32008},
		{KindDependencyUnavailable, -32009},
		{Kind("unmapped"), -32000},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.kind.JSONRPCCode())
		})
	}
}
