package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadValidateExclusivity(t *testing.T) {
	require.NoError(t, Payload{Text: "hello"}.Validate())
	require.NoError(t, Payload{Link: "https://example.com/x"}.Validate())
	require.NoError(t, Payload{Media: &Media{Type: MediaImage, StoragePath: "chat-media/c1/a/1.jpg"}}.Validate())

	assert.ErrorIs(t, Payload{}.Validate(), ErrEmptyPayload)
	assert.ErrorIs(t, Payload{Text: "   "}.Validate(), ErrEmptyPayload)
	assert.ErrorIs(t, Payload{Text: "hi", Link: "https://example.com"}.Validate(), ErrAmbiguousPayload)
	assert.ErrorIs(t, Payload{
		Text:  "hi",
		Media: &Media{Type: MediaFile, StoragePath: "chat-media/c1/a/1.bin"},
	}.Validate(), ErrAmbiguousPayload)
}

func TestPayloadValidateMedia(t *testing.T) {
	assert.Error(t, Payload{Media: &Media{Type: "audio", StoragePath: "chat-media/c/a/1"}}.Validate())
	assert.Error(t, Payload{Media: &Media{Type: MediaImage}}.Validate())
}

func TestClassifyTextBareURL(t *testing.T) {
	p := ClassifyText("https://example.com/x")
	assert.Equal(t, "https://example.com/x", p.Link)
	assert.Empty(t, p.Text)

	p = ClassifyText("  https://example.com/x \n")
	assert.Equal(t, "https://example.com/x", p.Link)
}

func TestClassifyTextEmbeddedURLStaysText(t *testing.T) {
	p := ClassifyText("check this https://example.com/x please")
	assert.Empty(t, p.Link)
	assert.Equal(t, "check this https://example.com/x please", p.Text)
}

func TestClassifyTextEmpty(t *testing.T) {
	p := ClassifyText("   ")
	assert.Error(t, p.Validate())
}

func TestIsBareURL(t *testing.T) {
	assert.True(t, IsBareURL("http://a.example"))
	assert.True(t, IsBareURL("https://a.example/path?q=1"))
	assert.False(t, IsBareURL("ftp://a.example"))
	assert.False(t, IsBareURL("https://a.example and more"))
	assert.False(t, IsBareURL(""))
}

func TestChatHasMember(t *testing.T) {
	chat := Chat{Users: []string{"a@x.com", "b@x.com"}}
	assert.True(t, chat.HasMember("A@X.COM"))
	assert.True(t, chat.HasMember(" b@x.com "))
	assert.False(t, chat.HasMember("c@x.com"))
}

func TestPayloadPreview(t *testing.T) {
	assert.Equal(t, "hi", Payload{Text: " hi "}.Preview())
	assert.Equal(t, "https://e.com", Payload{Link: "https://e.com"}.Preview())
	assert.Equal(t, "[photo]", Payload{Media: &Media{Type: MediaImage}}.Preview())
	assert.Equal(t, "[video]", Payload{Media: &Media{Type: MediaVideo}}.Preview())
	assert.Equal(t, "[file]", Payload{Media: &Media{Type: MediaFile}}.Preview())
}
