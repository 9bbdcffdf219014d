package profile

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/gestureflow/internal/action"
)

func TestService_ExportImport(t *testing.T) {
	svc, _ := newTestService(t, DefaultConfig())
	id := svc.Active().ID

	_, err := svc.SetMapping(id, entry("fist",
		action.Key("cmd", "c"), action.Wait(200*time.Millisecond), action.Key("cmd", "v")))
	require.NoError(t, err)
	_, err = svc.SetMapping(id, entry("open_palm", action.Launch("/Applications/Safari.app")))
	require.NoError(t, err)

	data, err := svc.Export(id)
	require.NoError(t, err)

	var doc Document
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, DocumentVersion, doc.Version)
	assert.Equal(t, "Default", doc.Name)
	assert.Len(t, doc.Mappings, 2)
	assert.NotEmpty(t, doc.Fingerprint)
	assert.NotContains(t, string(data), "use_count")

	imported, err := svc.Import(data)
	require.NoError(t, err)
	assert.Equal(t, "Default_1", imported.Name, "name clash gets a suffix")
	assert.NotEqual(t, id, imported.ID)
	assert.Equal(t, 2, imported.Len())

	e, ok := imported.Entry("fist")
	require.True(t, ok)
	assert.Equal(t, 3, len(e.Action.Steps))
	assert.Equal(t, 200*time.Millisecond, e.Action.Steps[1].WaitDuration())

	again, err := svc.Import(data)
	require.NoError(t, err)
	assert.Equal(t, "Default_2", again.Name)
}

func TestService_ImportRejects(t *testing.T) {
	svc, _ := newTestService(t, DefaultConfig())

	tests := []struct {
		name string
		doc  string
		want error
	}{
		{name: "not yaml", doc: "{{{", want: ErrBadDocument},
		{name: "wrong version", doc: "version: \"9\"\nname: x\n", want: ErrBadDocument},
		{name: "no name", doc: "version: \"1\"\nname: \"\"\n", want: ErrInvalidName},
		{
			name: "invalid action",
			doc: `version: "1"
name: Bad
mappings:
  - gesture: fist
    enabled: true
    action:
      steps: []
`,
			want: action.ErrInvalid,
		},
		{
			name: "tampered fingerprint",
			doc: `version: "1"
name: Tampered
fingerprint: deadbeef
mappings:
  - gesture: fist
    enabled: true
    action:
      steps:
        - type: key
          key:
            keys: [space]
`,
			want: ErrFingerprintMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Import([]byte(tt.doc))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	list, err := svc.List()
	require.NoError(t, err)
	assert.Len(t, list, 1, "rejected imports must not create profiles")
}

func TestService_ImportWithoutFingerprint(t *testing.T) {
	svc, _ := newTestService(t, DefaultConfig())

	doc := strings.Join([]string{
		`version: "1"`,
		`name: Hand Written`,
		`mappings:`,
		`  - gesture: Peace Sign`,
		`    enabled: true`,
		`    action:`,
		`      steps:`,
		`        - type: key`,
		`          key:`,
		`            text: hello`,
	}, "\n")

	p, err := svc.Import([]byte(doc))
	require.NoError(t, err)
	assert.True(t, p.Has("peace_sign"))
}
