package trailfeed

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const feedURL = "https://greenvilleopenmap.info/SwampRabbitWays.geojson"

// MockHTTPDoer is a mock implementation of HTTPDoer
type MockHTTPDoer struct {
	mock.Mock
}

func (m *MockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	if resp := args.Get(0); resp != nil {
		return resp.(*http.Response), args.Error(1)
	}
	return nil, args.Error(1)
}

// Helper function to create mock HTTP response
func createMockResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func newTestClient(doer HTTPDoer, retries uint64) *Client {
	return NewClientWithHTTPDoer(doer, retries).WithBackOff(func() backoff.BackOff {
		return &backoff.ZeroBackOff{}
	})
}

func TestFetch_Success(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		return req.Method == http.MethodGet && req.URL.String() == feedURL
	})).Return(createMockResponse(200, `{"type":"FeatureCollection","features":[]}`), nil)

	client := newTestClient(mockHTTP, 3)
	data, err := client.Fetch(context.Background(), feedURL)

	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(data))
	mockHTTP.AssertNumberOfCalls(t, "Do", 1)
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.Anything).Return(createMockResponse(503, "unavailable"), nil).Once()
	mockHTTP.On("Do", mock.Anything).Return(nil, errors.New("connection reset")).Once()
	mockHTTP.On("Do", mock.Anything).Return(createMockResponse(200, "{}"), nil).Once()

	client := newTestClient(mockHTTP, 3)
	data, err := client.Fetch(context.Background(), feedURL)

	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
	mockHTTP.AssertNumberOfCalls(t, "Do", 3)
}

func TestFetch_GivesUpAfterMaxRetries(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.Anything).Return(createMockResponse(500, "boom"), nil).Times(3)

	client := newTestClient(mockHTTP, 2)
	_, err := client.Fetch(context.Background(), feedURL)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 500, statusErr.StatusCode)
	mockHTTP.AssertNumberOfCalls(t, "Do", 3)
}

func TestFetch_ClientErrorsAreNotRetried(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.Anything).Return(createMockResponse(404, "not found"), nil)

	client := newTestClient(mockHTTP, 3)
	_, err := client.Fetch(context.Background(), feedURL)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 404, statusErr.StatusCode)
	mockHTTP.AssertNumberOfCalls(t, "Do", 1)
}

func TestFetch_CancelledContext(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.Anything).Return(nil, context.Canceled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(mockHTTP, 5)
	_, err := client.Fetch(ctx, feedURL)
	require.Error(t, err)
}
