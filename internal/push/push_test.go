package push

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/require"

	"pill-reminder/internal/database"
)

func TestValidToken(t *testing.T) {
	cases := []struct {
		platform database.Platform
		token    string
		want     bool
	}{
		{database.PlatformExpo, "ExponentPushToken[abc123]", true},
		{database.PlatformExpo, "ExpoPushToken[abc123]", true},
		{database.PlatformExpo, "ExponentPushToken[abc123", false},
		{database.PlatformExpo, "fcm-raw-token", false},
		{database.PlatformExpo, "", false},
		{database.PlatformTelegram, "123456789", true},
		{database.PlatformTelegram, "-100123", true},
		{database.PlatformTelegram, "chat", false},
		{database.PlatformSNS, "arn:aws:sns:us-east-1:1:endpoint/GCM/app/x", true},
		{database.PlatformSNS, "endpoint", false},
		{database.Platform("pager"), "anything", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ValidToken(tc.platform, tc.token), "%s %q", tc.platform, tc.token)
	}
}

func TestExpoClientSend(t *testing.T) {
	var got expoMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"data":{"status":"ok","id":"ticket-1"}}`))
	}))
	defer server.Close()

	client := NewExpoClient(server.URL, "secret", time.Second)
	receipt, err := client.Send(context.Background(), Message{
		To:    "ExponentPushToken[abc]",
		Title: "title",
		Body:  "body",
		Data:  map[string]string{"date": "2024-01-15"},
	})
	require.NoError(t, err)
	require.True(t, receipt.Success)
	require.Contains(t, receipt.ProviderResponse, "ticket-1")
	require.Equal(t, "ExponentPushToken[abc]", got.To)
	require.Equal(t, "default", got.Sound)
	require.Equal(t, "high", got.Priority)
	require.Equal(t, "2024-01-15", got.Data["date"])
}

func TestExpoClientFailures(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"server error":  {http.StatusInternalServerError, `oops`},
		"ticket error":  {http.StatusOK, `{"data":{"status":"error","message":"DeviceNotRegistered"}}`},
		"request error": {http.StatusOK, `{"errors":[{"code":"VALIDATION_ERROR","message":"bad"}]}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			receipt, err := NewExpoClient(server.URL, "", time.Second).Send(context.Background(), Message{To: "ExponentPushToken[x]"})
			require.ErrorIs(t, err, ErrDeliveryRejected)
			require.False(t, receipt.Success)
			require.Equal(t, tc.body, receipt.ProviderResponse)
		})
	}
}

type fakeSNS struct {
	input *awssns.PublishInput
}

func (f *fakeSNS) Publish(ctx context.Context, params *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error) {
	f.input = params
	return &awssns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSNSClientSend(t *testing.T) {
	fake := &fakeSNS{}
	client := &SNSClient{client: fake}

	receipt, err := client.Send(context.Background(), Message{
		To:    "arn:aws:sns:us-east-1:1:endpoint/GCM/app/x",
		Title: "t",
		Body:  "b",
		Data:  map[string]string{"kind": "pill_reminder"},
	})
	require.NoError(t, err)
	require.True(t, receipt.Success)
	require.Equal(t, "msg-1", receipt.ProviderResponse)
	require.Equal(t, "json", aws.ToString(fake.input.MessageStructure))
	require.Equal(t, "arn:aws:sns:us-east-1:1:endpoint/GCM/app/x", aws.ToString(fake.input.TargetArn))

	var envelope map[string]string
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(fake.input.Message)), &envelope))
	require.Equal(t, "b", envelope["default"])
	require.Contains(t, envelope["GCM"], "pill_reminder")
}

func TestRouter(t *testing.T) {
	router := NewRouter()
	router.Register(database.PlatformExpo, TransportFunc(func(ctx context.Context, msg Message) (Receipt, error) {
		return Receipt{Success: true, ProviderResponse: "via expo"}, nil
	}))

	require.True(t, router.Supports(database.PlatformExpo))
	require.False(t, router.Supports(database.PlatformSNS))

	receipt, err := router.SendTo(context.Background(), database.PlatformExpo, Message{})
	require.NoError(t, err)
	require.Equal(t, "via expo", receipt.ProviderResponse)

	_, err = router.SendTo(context.Background(), database.PlatformSNS, Message{})
	require.ErrorIs(t, err, ErrUnsupportedPlatform)
}
