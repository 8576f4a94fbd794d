package supervisor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullwave/polystep/internal/supervisor"
)

func TestSpawnMissingExecutable(t *testing.T) {
	s := supervisor.New("/definitely/not/a/real/binary", nil, nil)
	err := s.Spawn(context.Background())
	assert.ErrorIs(t, err, supervisor.ErrExecutableNotFound)
}

func TestSpawnSuccessReportsExitZero(t *testing.T) {
	s := supervisor.New("sh", []string{"-c", "exit 0"}, nil)

	closed := make(chan int, 1)
	s.OnProcessClose(func(code int) { closed <- code })

	require.NoError(t, s.Spawn(context.Background()))

	select {
	case code := <-closed:
		assert.Equal(t, 0, code)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for process close")
	}
}

func TestSpawnNonzeroExit(t *testing.T) {
	s := supervisor.New("sh", []string{"-c", "exit 7"}, nil)

	closed := make(chan int, 1)
	s.OnProcessClose(func(code int) { closed <- code })

	require.NoError(t, s.Spawn(context.Background()))

	select {
	case code := <-closed:
		assert.Equal(t, 7, code)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for process close")
	}
}

func TestStderrClassifiedAsPlainText(t *testing.T) {
	s := supervisor.New("sh", []string{"-c", "echo boom 1>&2"}, nil)

	lines := make(chan string, 1)
	s.OnStderr(func(line []byte) { lines <- string(line) })

	require.NoError(t, s.Spawn(context.Background()))

	select {
	case line := <-lines:
		assert.Equal(t, "boom", line)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stderr")
	}
}

func TestStdoutJSONClassification(t *testing.T) {
	s := supervisor.New("sh", []string{"-c", `echo '{"level":"info","msg":"hi"}'; echo plain text`}, nil)

	type line struct {
		text   string
		isJSON bool
	}
	lines := make(chan line, 2)
	s.OnStdout(func(l []byte, isJSON bool) {
		lines <- line{text: string(l), isJSON: isJSON}
	})

	require.NoError(t, s.Spawn(context.Background()))

	seen := map[bool]string{}
	for i := 0; i < 2; i++ {
		select {
		case l := <-lines:
			seen[l.isJSON] = l.text
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for stdout lines")
		}
	}

	assert.Contains(t, seen[true], "hi")
	assert.Equal(t, "plain text", seen[false])
}
