package actions

import (
	"context"
	"errors"
	"path"
	"sync"
	"time"

	"github.com/rendis/actiondesk/pkg/schema"
)

var testZone = time.FixedZone("MYT", 8*60*60)

func fixedNow() time.Time { return time.Date(2026, 10, 16, 10, 0, 0, 0, testZone) }

// credentialMap is an in-memory CredentialLookup keyed by provider/user.
type credentialMap map[string]*schema.Credential

func (m credentialMap) Get(_ context.Context, provider, userID string) (*schema.Credential, error) {
	return m[schema.CredentialKey{Provider: provider, UserID: userID}.String()], nil
}

func googleCreds(userID string, cred schema.Credential) credentialMap {
	return credentialMap{schema.CredentialKey{Provider: schema.ProviderGoogle, UserID: userID}.String(): &cred}
}

func validCred() schema.Credential {
	return schema.Credential{AccessToken: "at-1", RefreshToken: "rt-1", Expiry: fixedNow().Add(time.Hour)}
}

type fakeAuthorizer struct{}

func (fakeAuthorizer) AuthURL(userID string) (string, error) {
	return "https://accounts.example.com/consent?user=" + userID, nil
}

type fakeRefresher struct {
	calls int
	next  *schema.Credential
	err   error
}

func (f *fakeRefresher) Refresh(_ context.Context, _ schema.Credential) (*schema.Credential, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	c := *f.next
	return &c, nil
}

type fakeCalendar struct {
	calls   int
	gotCred schema.Credential
	gotEv   CalendarEvent
	err     error
}

func (f *fakeCalendar) CreateEvent(_ context.Context, cred schema.Credential, ev CalendarEvent) (*CreatedEvent, error) {
	f.calls++
	f.gotCred, f.gotEv = cred, ev
	if f.err != nil {
		return nil, f.err
	}
	return &CreatedEvent{
		ID:       "evt-1",
		Summary:  ev.Summary,
		Start:    ev.StartISO,
		End:      ev.EndISO,
		HTMLLink: "https://calendar.example.com/event?eid=evt-1",
	}, nil
}

type fakeMail struct {
	calls int
	raw   string
	err   error
}

func (f *fakeMail) Send(_ context.Context, _ schema.Credential, raw string) (*SentMessage, error) {
	f.calls++
	f.raw = raw
	if f.err != nil {
		return nil, f.err
	}
	return &SentMessage{ID: "msg-1", ThreadID: "thr-1"}, nil
}

type fakePayments struct {
	calls int
	got   CheckoutRequest
	err   error
}

func (f *fakePayments) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	f.calls++
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &CheckoutSession{ID: "cs_test_1", URL: "https://checkout.example.com/c/cs_test_1"}, nil
}

// memFiles is an in-memory FileReader and FileWriter.
type memFiles struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemFiles() *memFiles { return &memFiles{files: map[string][]byte{}} }

func (m *memFiles) Write(_ context.Context, name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := path.Join("/invoices", name)
	m.files[p] = append([]byte(nil), data...)
	return p, nil
}

func (m *memFiles) Exists(_ context.Context, p string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[p]
	return ok, nil
}

func (m *memFiles) Read(_ context.Context, p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[p]
	if !ok {
		return nil, errors.New("no such file")
	}
	return b, nil
}
