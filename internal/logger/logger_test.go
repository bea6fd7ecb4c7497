package logger

import (
	"os"
	"testing"
)

type mockLogSink struct{}

func (mockLogSink) Info(level int, msg string, keysAndValues ...interface{}) {}

func BenchmarkLogger(b *testing.B) {
	b.ReportAllocs()
	b.ResetTimer()

	b.Run("Print", func(b *testing.B) {
		b.ReportAllocs()
		b.ResetTimer()

		logger := New(mockLogSink{}, 0, map[Component]Level{
			ComponentCommand: LevelDebug,
		})

		for i := 0; i < b.N; i++ {
			logger.Print(LevelInfo, &CommandStartedMessage{})
		}
	})
}

func TestSelectMaxDocumentLength(t *testing.T) {
	for _, tcase := range []struct {
		name     string
		arg      uint
		expected uint
		env      map[string]string
	}{
		{
			name:     "default",
			arg:      0,
			expected: DefaultMaxDocumentLength,
		},
		{
			name:     "non-zero",
			arg:      100,
			expected: 100,
		},
		{
			name:     "valid env",
			arg:      0,
			expected: 100,
			env: map[string]string{
				maxDocumentLengthEnvVar: "100",
			},
		},
		{
			name:     "invalid env",
			arg:      0,
			expected: DefaultMaxDocumentLength,
			env: map[string]string{
				maxDocumentLengthEnvVar: "foo",
			},
		},
	} {
		tcase := tcase

		t.Run(tcase.name, func(t *testing.T) {
			for k, v := range tcase.env {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}

			actual := selectMaxDocumentLength(
				func() uint { return tcase.arg },
				getEnvMaxDocumentLength,
			)
			if actual != tcase.expected {
				t.Errorf("expected %d, got %d", tcase.expected, actual)
			}
		})
	}
}

func TestSelectedComponentLevels(t *testing.T) {
	for _, tcase := range []struct {
		name     string
		arg      map[Component]Level
		expected map[Component]Level
		env      map[string]string
	}{
		{
			name: "default",
			arg:  nil,
			expected: map[Component]Level{
				ComponentCommand:         LevelOff,
				ComponentTopology:        LevelOff,
				ComponentServerSelection: LevelOff,
				ComponentConnection:      LevelOff,
			},
		},
		{
			name: "non-nil",
			arg: map[Component]Level{
				ComponentCommand: LevelDebug,
			},
			expected: map[Component]Level{
				ComponentCommand: LevelDebug,
			},
		},
		{
			name: "valid env",
			arg:  nil,
			expected: map[Component]Level{
				ComponentCommand:  LevelDebug,
				ComponentTopology: LevelInfo,
			},
			env: map[string]string{
				string(mongoDBLogCommandEnvVar):  "debug",
				string(mongoDBLogTopologyEnvVar): "info",
			},
		},
	} {
		tcase := tcase

		t.Run(tcase.name, func(t *testing.T) {
			for k, v := range tcase.env {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}

			actual := selectComponentLevels(
				func() map[Component]Level { return tcase.arg },
				getEnvComponentLevels,
			)
			for k, v := range tcase.expected {
				if actual[k] != v {
					t.Errorf("%s: expected %d, got %d", k, v, actual[k])
				}
			}
		})
	}
}
