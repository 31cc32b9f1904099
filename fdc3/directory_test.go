package fdc3

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func chartApp() *AppDescriptor {
	return &AppDescriptor{
		AppID:   "chart",
		Name:    "Chart",
		Title:   "Charting",
		Version: "1.2.0",
		Icons:   []Icon{{Src: "https://example.test/chart.png"}},
		Interop: &Interop{Intents: &InteropIntents{
			ListensFor: map[string]IntentDeclaration{
				"ViewChart":    {Contexts: []string{"fdc3.instrument"}, ResultType: "channel<fdc3.instrument>"},
				"ViewAnalysis": {Contexts: []string{"fdc3.instrument", "fdc3.portfolio"}},
			},
			Raises: map[string][]string{
				"StartCall": {"fdc3.contact"},
			},
		}},
	}
}

func TestIntentDeclarationAcceptsContext(t *testing.T) {
	decl := IntentDeclaration{Contexts: []string{"fdc3.instrument"}}

	assert.True(t, decl.AcceptsContext("fdc3.instrument"))
	assert.True(t, decl.AcceptsContext(ContextTypeNothing))
	assert.False(t, decl.AcceptsContext("fdc3.contact"))
}

func TestIntentDeclarationProducesResult(t *testing.T) {
	tests := []struct {
		declared  string
		requested string
		want      bool
	}{
		{"channel<fdc3.instrument>", "channel", true},
		{"channel", "channel", true},
		{"fdc3.instrument", "channel", false},
		{"", ContextTypeNothing, true},
		{ContextTypeNothing, ContextTypeNothing, true},
		{"fdc3.order", ContextTypeNothing, false},
		{"fdc3.order", "fdc3.order", true},
		{"channel<fdc3.instrument>", "channel<fdc3.instrument>", true},
		{"fdc3.order", "fdc3.trade", false},
	}
	for _, tt := range tests {
		t.Run(tt.declared+"->"+tt.requested, func(t *testing.T) {
			decl := IntentDeclaration{ResultType: tt.declared}
			assert.Equal(t, tt.want, decl.ProducesResult(tt.requested))
		})
	}
}

func TestAppDescriptorIntentNames(t *testing.T) {
	assert.Equal(t, []string{"ViewAnalysis", "ViewChart"}, chartApp().IntentNames())
	assert.Empty(t, (&AppDescriptor{AppID: "bare"}).IntentNames())

	var missing *AppDescriptor
	assert.Nil(t, missing.ListensFor())
}

func TestAppDescriptorToAppMetadata(t *testing.T) {
	meta := chartApp().ToAppMetadata("instance-1", "channel<fdc3.instrument>")

	assert.Equal(t, "chart", meta.AppID)
	assert.Equal(t, "instance-1", meta.InstanceID)
	assert.Equal(t, "Charting", meta.Title)
	assert.Equal(t, "channel<fdc3.instrument>", meta.ResultType)
	assert.Len(t, meta.Icons, 1)
	assert.Equal(t, AppIdentifier{AppID: "chart", InstanceID: "instance-1"}, meta.Identifier())
}

func TestAppDescriptorCanRaiseIntent(t *testing.T) {
	app := chartApp()

	assert.True(t, app.CanRaiseIntent("StartCall", "fdc3.contact"))
	assert.True(t, app.CanRaiseIntent("StartCall", ContextTypeNothing))
	assert.True(t, app.CanRaiseIntent("", "fdc3.contact"))
	assert.False(t, app.CanRaiseIntent("StartCall", "fdc3.instrument"))
	assert.False(t, app.CanRaiseIntent("ViewChart", "fdc3.instrument"))
	assert.False(t, app.CanRaiseIntent("StartCall", ""))
	assert.False(t, (&AppDescriptor{}).CanRaiseIntent("StartCall", "fdc3.contact"))
}
