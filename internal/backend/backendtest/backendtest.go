// Package backendtest provides in-memory implementations of the backend
// contracts with call counters and injectable failures.
package backendtest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/campus-marketplace/internal/backend"
	"github.com/iliyamo/campus-marketplace/internal/model"
)

// Calls counts invocations per method name.
type Calls struct {
	mu sync.Mutex
	n  map[string]int
}

func (c *Calls) inc(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == nil {
		c.n = map[string]int{}
	}
	c.n[name]++
}

// Count returns how often name was called.
func (c *Calls) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[name]
}

// Total returns the number of calls across all methods.
func (c *Calls) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, v := range c.n {
		total += v
	}
	return total
}

// Auth is an in-memory backend.Auth. Accounts are confirmed at sign-up only
// when AutoConfirm is set; Confirm simulates following the emailed link.
type Auth struct {
	Calls

	AutoConfirm bool
	SignUpErr   error
	SignInErr   error
	SignOutErr  error
	ResetErr    error

	mu        sync.Mutex
	users     map[string]*account
	session   *backend.Session
	listeners map[int]backend.SessionListener
	nextID    int
	nextSub   int
	Resets    []string // redirect targets passed to RequestPasswordReset
}

type account struct {
	user     backend.User
	password string
}

func NewAuth() *Auth {
	return &Auth{users: map[string]*account{}, listeners: map[int]backend.SessionListener{}}
}

// Confirm marks an account confirmed.
func (a *Auth) Confirm(email string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if acc, ok := a.users[strings.ToLower(email)]; ok {
		now := time.Now().UTC()
		acc.user.ConfirmedAt = &now
	}
}

// Listeners returns the number of registered session listeners.
func (a *Auth) Listeners() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.listeners)
}

// Emit delivers ev to every listener and replaces the stored session, the way
// the backend does on external changes such as expiry or a restore.
func (a *Auth) Emit(ev backend.Event, sess *backend.Session) {
	a.mu.Lock()
	a.session = sess
	fns := make([]backend.SessionListener, 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.mu.Unlock()
	for _, fn := range fns {
		fn(ev, sess)
	}
}

func (a *Auth) SignUp(_ context.Context, email, password string) (*backend.Session, error) {
	a.inc("SignUp")
	if a.SignUpErr != nil {
		return nil, a.SignUpErr
	}
	a.mu.Lock()
	key := strings.ToLower(strings.TrimSpace(email))
	if _, ok := a.users[key]; ok {
		a.mu.Unlock()
		return nil, &backend.BackendError{Status: http.StatusUnprocessableEntity, Message: "User already registered"}
	}
	a.nextID++
	acc := &account{user: backend.User{ID: uint64(a.nextID), Email: key}, password: password}
	a.users[key] = acc
	a.mu.Unlock()

	if !a.AutoConfirm {
		return nil, nil
	}
	a.Confirm(key)
	sess := a.issue(acc)
	a.Emit(backend.EventSignedIn, sess)
	return sess, nil
}

func (a *Auth) SignIn(_ context.Context, email, password string) (*backend.Session, error) {
	a.inc("SignIn")
	if a.SignInErr != nil {
		return nil, a.SignInErr
	}
	a.mu.Lock()
	acc, ok := a.users[strings.ToLower(strings.TrimSpace(email))]
	a.mu.Unlock()
	if !ok || acc.password != password {
		return nil, &backend.BackendError{Status: http.StatusBadRequest, Message: "Invalid login credentials"}
	}
	if acc.user.ConfirmedAt == nil {
		return nil, &backend.BackendError{Status: http.StatusBadRequest, Message: "Email not confirmed"}
	}
	sess := a.issue(acc)
	a.Emit(backend.EventSignedIn, sess)
	return sess, nil
}

func (a *Auth) issue(acc *account) *backend.Session {
	return &backend.Session{
		AccessToken:  uuid.NewString(),
		RefreshToken: uuid.NewString(),
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         acc.user,
	}
}

func (a *Auth) SignOut(context.Context) error {
	a.inc("SignOut")
	if a.SignOutErr != nil {
		return a.SignOutErr
	}
	a.Emit(backend.EventSignedOut, nil)
	return nil
}

func (a *Auth) GetSession(context.Context) (*backend.Session, error) {
	a.inc("GetSession")
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session, nil
}

func (a *Auth) GetUser(context.Context) (*backend.User, error) {
	a.inc("GetUser")
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil, backend.ErrNoSession
	}
	u := a.session.User
	return &u, nil
}

func (a *Auth) OnSessionChange(fn backend.SessionListener) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextSub++
	id := a.nextSub
	a.listeners[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.listeners, id)
			a.mu.Unlock()
		})
	}
}

func (a *Auth) RequestPasswordReset(_ context.Context, email, redirectTo string) error {
	a.inc("RequestPasswordReset")
	if a.ResetErr != nil {
		return a.ResetErr
	}
	a.mu.Lock()
	a.Resets = append(a.Resets, redirectTo)
	a.mu.Unlock()
	return nil
}

// Listings is an in-memory backend.ListingStore. Creation times are strictly
// increasing in insertion order.
type Listings struct {
	Calls

	SelectErr    error
	InsertErr    error
	SetActiveErr error
	DeleteErr    error

	mu    sync.Mutex
	rows  []model.Listing
	clock time.Time
}

func NewListings() *Listings {
	return &Listings{clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Rows returns a copy of every stored row in insertion order.
func (s *Listings) Rows() []model.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Listing(nil), s.rows...)
}

func (s *Listings) Select(_ context.Context, f model.ListingFilter) ([]model.Listing, error) {
	s.inc("Select")
	if s.SelectErr != nil {
		return nil, s.SelectErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Listing{}
	for _, l := range s.rows {
		if f.Category != "" && l.Category != f.Category {
			continue
		}
		if f.SellerEmail != "" && !strings.EqualFold(l.SellerEmail, strings.TrimSpace(f.SellerEmail)) {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if f.Ascending {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Listings) Insert(_ context.Context, in model.NewListing) (*model.Listing, error) {
	s.inc("Insert")
	if s.InsertErr != nil {
		return nil, s.InsertErr
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = s.clock.Add(time.Second)
	l := model.Listing{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Price:       in.Price,
		Description: in.Description,
		Category:    in.Category,
		SellerEmail: in.SellerEmail,
		SellerPhone: in.SellerPhone,
		ImageURL:    in.ImageURL,
		IsActive:    active,
		CreatedAt:   s.clock,
	}
	s.rows = append(s.rows, l)
	return &l, nil
}

func (s *Listings) SetActive(_ context.Context, id string, active bool) error {
	s.inc("SetActive")
	if s.SetActiveErr != nil {
		return s.SetActiveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows[i].IsActive = active
			return nil
		}
	}
	return &backend.BackendError{Status: http.StatusNotFound, Message: "listing not found"}
}

func (s *Listings) Delete(_ context.Context, id string) error {
	s.inc("Delete")
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return &backend.BackendError{Status: http.StatusNotFound, Message: "listing not found"}
}

// Objects is an in-memory backend.ObjectStore.
type Objects struct {
	Calls

	UploadErr error

	mu      sync.Mutex
	objects map[string][]byte
}

func NewObjects() *Objects { return &Objects{objects: map[string][]byte{}} }

// Keys returns every stored "bucket/key".
func (o *Objects) Keys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.objects))
	for k := range o.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (o *Objects) Upload(_ context.Context, bucket, key, _ string, r io.Reader) error {
	o.inc("Upload")
	if o.UploadErr != nil {
		return o.UploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	full := bucket + "/" + key
	if _, ok := o.objects[full]; ok {
		return &backend.BackendError{Status: http.StatusConflict, Message: "The resource already exists"}
	}
	o.objects[full] = data
	return nil
}

func (o *Objects) PublicURL(bucket, key string) string {
	return fmt.Sprintf("memory://%s/%s", bucket, key)
}
