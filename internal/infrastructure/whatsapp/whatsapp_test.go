package whatsapp

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/go-whatsapp-otp/internal/infrastructure/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userJID = types.NewJID("919876543210", types.DefaultUserServer)

func TestSessionRoundTrip(t *testing.T) {
	blob, err := encodeSession(types.NewADJID("919876543210", 0, 7))
	require.NoError(t, err)

	jid, ok, err := decodeSession(blob)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "919876543210", jid.User)
	assert.Equal(t, uint16(7), jid.Device)
}

func TestDecodeSession_Empty(t *testing.T) {
	for _, blob := range [][]byte{nil, []byte(`{}`), []byte(`{"jid":""}`)} {
		_, ok, err := decodeSession(blob)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	_, _, err := decodeSession([]byte(`not json`))
	assert.Error(t, err)
}

func TestTranslate(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	textMsg := func(info types.MessageInfo, m *waProto.Message) *events.Message {
		return &events.Message{Info: info, Message: m}
	}
	direct := types.MessageInfo{
		MessageSource: types.MessageSource{Chat: userJID, Sender: userJID},
		ID:            "3EB0ABC",
		Timestamp:     ts,
	}

	t.Run("connected", func(t *testing.T) {
		ev, ok := translate(&events.Connected{})
		require.True(t, ok)
		assert.Equal(t, messaging.Opened{}, ev)
	})

	t.Run("pair success", func(t *testing.T) {
		ev, ok := translate(&events.PairSuccess{ID: userJID})
		require.True(t, ok)
		cu, isCU := ev.(messaging.CredentialsUpdated)
		require.True(t, isCU)
		var s session
		require.NoError(t, json.Unmarshal(cu.Session, &s))
		assert.Equal(t, "919876543210@s.whatsapp.net", s.JID)
	})

	t.Run("logged out is terminal", func(t *testing.T) {
		ev, ok := translate(&events.LoggedOut{})
		require.True(t, ok)
		closed := ev.(messaging.Closed)
		assert.True(t, closed.LoggedOut)
	})

	t.Run("disconnect is not terminal", func(t *testing.T) {
		for _, evt := range []interface{}{&events.Disconnected{}, &events.StreamReplaced{}, &events.ConnectFailure{}} {
			ev, ok := translate(evt)
			require.True(t, ok)
			closed := ev.(messaging.Closed)
			assert.False(t, closed.LoggedOut)
			assert.Error(t, closed.Cause)
		}
	})

	t.Run("conversation text", func(t *testing.T) {
		ev, ok := translate(textMsg(direct, &waProto.Message{Conversation: proto.String("hello, give me access")}))
		require.True(t, ok)
		in := ev.(messaging.Inbound).Message
		assert.Equal(t, "3EB0ABC", in.ID)
		assert.Equal(t, "919876543210@s.whatsapp.net", in.From)
		assert.Equal(t, "hello, give me access", in.Text)
		assert.Equal(t, ts, in.Timestamp)
		assert.False(t, in.FromMe)
	})

	t.Run("extended text", func(t *testing.T) {
		ev, ok := translate(textMsg(direct, &waProto.Message{
			ExtendedTextMessage: &waProto.ExtendedTextMessage{Text: proto.String("hi")},
		}))
		require.True(t, ok)
		assert.Equal(t, "hi", ev.(messaging.Inbound).Message.Text)
	})

	t.Run("ignored", func(t *testing.T) {
		group := direct
		group.IsGroup = true
		for _, evt := range []interface{}{
			textMsg(group, &waProto.Message{Conversation: proto.String("hello, give me access")}),
			textMsg(direct, &waProto.Message{}),
			textMsg(direct, nil),
			&events.Receipt{},
		} {
			_, ok := translate(evt)
			assert.False(t, ok)
		}
	})
}

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	l.Sub("Client").Warnf("retrying in %d seconds", 5)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "retrying in 5 seconds", line["msg"])
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "Client", line["module"])
}
