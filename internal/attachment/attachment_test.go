package attachment

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"
)

type fakeBlobs struct {
	objects map[string][]byte
	fail    bool
}

func (f *fakeBlobs) PresignUpload(_ context.Context, key string) (string, error) {
	if f.fail {
		return "", fmt.Errorf("blob store down")
	}
	return "https://blobs.test/upload/" + key, nil
}

func (f *fakeBlobs) Fetch(_ context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %q", key)
	}
	return data, nil
}

func TestPresignUploads(t *testing.T) {
	svc := NewService(true, &fakeBlobs{}, zap.NewNop())
	body := map[string]any{
		"attachments": map[string]any{"documents": []any{"k1", "k2"}},
	}

	urls, err := svc.PresignUploads(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://blobs.test/upload/k1", "https://blobs.test/upload/k2"}, urls)
}

func TestPresignUploads_NoAttachments(t *testing.T) {
	svc := NewService(true, &fakeBlobs{}, zap.NewNop())
	urls, err := svc.PresignUploads(context.Background(), map[string]any{"FeeID": "471"})
	require.NoError(t, err)
	assert.Nil(t, urls)
}

func TestPresignUploads_Disabled(t *testing.T) {
	svc := NewService(false, nil, zap.NewNop())
	body := map[string]any{
		"attachments": map[string]any{"documents": []any{"k1"}},
	}
	urls, err := svc.PresignUploads(context.Background(), body)
	require.NoError(t, err)
	assert.Nil(t, urls)
}

func TestPresignUploads_StoreError(t *testing.T) {
	svc := NewService(true, &fakeBlobs{fail: true}, zap.NewNop())
	body := map[string]any{
		"attachments": map[string]any{"documents": []any{"k1"}},
	}
	_, err := svc.PresignUploads(context.Background(), body)
	assert.Error(t, err)
}

func TestInline_ReplacesKeysWithContents(t *testing.T) {
	blobs := &fakeBlobs{objects: map[string][]byte{
		"k1": []byte("hello"),
		"k2": []byte("world"),
	}}
	svc := NewService(true, blobs, zap.NewNop())

	docs := []bson.M{{
		"FeeID":       "471",
		"attachments": bson.M{"documents": bson.A{"k1", "k2"}},
	}}
	out := svc.Inline(context.Background(), docs)
	require.Len(t, out, 1)
	assert.Equal(t, []any{"hello", "world"}, out[0]["attachments"])
}

func TestInline_FetchFailureLeavesDocumentIntact(t *testing.T) {
	svc := NewService(true, &fakeBlobs{objects: map[string][]byte{}}, zap.NewNop())
	docs := []bson.M{{
		"attachments": bson.M{"documents": bson.A{"missing"}},
	}}
	out := svc.Inline(context.Background(), docs)
	assert.Equal(t, bson.M{"documents": bson.A{"missing"}}, out[0]["attachments"])
}

func TestInline_Disabled(t *testing.T) {
	svc := NewService(false, nil, zap.NewNop())
	docs := []bson.M{{"attachments": bson.M{"documents": bson.A{"k1"}}}}
	out := svc.Inline(context.Background(), docs)
	assert.Equal(t, bson.M{"documents": bson.A{"k1"}}, out[0]["attachments"])
}

func TestDecode(t *testing.T) {
	assert.Equal(t, "plain text", Decode([]byte("plain text")))
	// base64 payloads are themselves valid UTF-8, so they pass through
	assert.Equal(t, "aGVsbG8=", Decode([]byte("aGVsbG8=")))
	// invalid UTF-8 that is not base64 falls back to the quoted form
	raw := []byte{0xff, 0xfe, 0x00}
	assert.Equal(t, fmt.Sprintf("%q", raw), Decode(raw))
}
