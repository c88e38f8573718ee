package nebulaerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "nil",
			err:  nil,
			want: "",
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: "boom",
		},
		{
			name: "fmt wrapped chain",
			err:  fmt.Errorf("outer: %w", fmt.Errorf("middle: %w", errors.New("inner"))),
			want: "outer --> middle --> inner",
		},
		{
			name: "structured chain",
			err:  ExecutionError(StageSourceRead, ConnectorError("csv", "read", errors.New("no such file"))),
			want: "SourceRead stage failed --> csv read failed --> no such file",
		},
		{
			name: "empty messages are skipped",
			err:  Wrap(errors.New("disk full"), ErrorTypeInternal, ""),
			want: "disk full",
		},
		{
			name: "joined errors",
			err:  ExecutionError(StageTransform, errors.Join(errors.New("a failed"), errors.New("b failed"))),
			want: "Transform stage failed --> a failed --> b failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Flatten(tt.err))
		})
	}
}

func TestStageOf(t *testing.T) {
	err := ExecutionError(StageMapping, ValidationError("field %q mapped twice", "email"))

	stage, ok := StageOf(err)
	require.True(t, ok)
	assert.Equal(t, StageMapping, stage)

	_, ok = StageOf(errors.New("plain"))
	assert.False(t, ok)

	_, ok = StageOf(ValidationError("bad"))
	assert.False(t, ok)
}

func TestIsType(t *testing.T) {
	cancelled := ExecutionError(StageDestinationWrite, Cancelled(context.Canceled))

	assert.True(t, IsType(cancelled, ErrorTypeExecution))
	assert.True(t, IsType(cancelled, ErrorTypeCancelled))
	assert.True(t, errors.Is(cancelled, context.Canceled))
	assert.False(t, IsType(cancelled, ErrorTypeConnector))
	assert.False(t, IsType(nil, ErrorTypeInternal))
}

func TestConstructors(t *testing.T) {
	unknown := UnknownConnectorType("source", "ftp")
	assert.Equal(t, ErrorTypeUnknownConnector, unknown.Type)
	assert.Equal(t, "ftp", unknown.Details["type"])
	assert.Contains(t, unknown.Error(), `"ftp"`)

	rejected := ConcurrentRunRejected("p-1")
	assert.True(t, IsType(rejected, ErrorTypeConcurrentRun))
	assert.Equal(t, "p-1", rejected.Details["pipeline_id"])

	conn := ConnectorError("kafka", "write", nil)
	require.NotNil(t, conn)
	assert.Equal(t, "kafka write failed --> unknown failure", Flatten(conn))

	exec := ExecutionError(StageSourceRead, nil)
	require.NotNil(t, exec)
	assert.Equal(t, StageSourceRead, exec.Stage)

	assert.Nil(t, Wrap(nil, ErrorTypeInternal, "ignored"))
	assert.NotEmpty(t, New(ErrorTypeInternal, "x").Stack)
}
