package service

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"roaia/internal/model"
)

// Services depend on repository interfaces, so tests swap in these fakes.
// Function fields let each test script one behavior; unset fields fall back
// to a harmless default.

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

// ---------------------------------------------------------------------------
// users
// ---------------------------------------------------------------------------

type mockUserRepository struct {
	createFn           func(ctx context.Context, user *model.User) error
	getByIDFn          func(ctx context.Context, id string) (*model.User, error)
	getByIdentifierFn  func(ctx context.Context, identifier string) (*model.User, error)
	existsByUsernameFn func(ctx context.Context, username string) (bool, error)
	existsByEmailFn    func(ctx context.Context, email string) (bool, error)
	existsByPhoneFn    func(ctx context.Context, phone string) (bool, error)
	updateFn           func(ctx context.Context, user *model.User) error
	setOTPFn           func(ctx context.Context, userID string, code *string, expiresAt *time.Time) error
	deleteFn           func(ctx context.Context, userID string) error
	rolesFn            func(ctx context.Context, userID string) ([]string, error)
	loginFailureFn     func(ctx context.Context, userID string, maxAttempts int, lockUntil time.Time) (*time.Time, error)
	toggleDeletedFn    func(ctx context.Context, userID string) (*model.StatusResult, error)

	created          []*model.User
	grantedRoles     []string
	replacedRoles    [][]string
	passwordHash     string
	confirmed        []string
	otpCodes         []*string
	otpFailures      int
	loginFailures    int
	clearedLockouts  []string
	subscribedEmails []string
	unsubscribed     []string
	updated          []*model.User
	deletedUserID    string
}

func (m *mockUserRepository) Create(ctx context.Context, tx *sqlx.Tx, user *model.User) error {
	m.created = append(m.created, user)
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrUserNotFound
}

func (m *mockUserRepository) GetByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	if m.getByIdentifierFn != nil {
		return m.getByIdentifierFn(ctx, identifier)
	}
	return nil, model.ErrUserNotFound
}

func (m *mockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	if m.existsByUsernameFn != nil {
		return m.existsByUsernameFn(ctx, username)
	}
	return false, nil
}

func (m *mockUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if m.existsByEmailFn != nil {
		return m.existsByEmailFn(ctx, email)
	}
	return false, nil
}

func (m *mockUserRepository) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	if m.existsByPhoneFn != nil {
		return m.existsByPhoneFn(ctx, phone)
	}
	return false, nil
}

func (m *mockUserRepository) Update(ctx context.Context, user *model.User) error {
	m.updated = append(m.updated, user)
	if m.updateFn != nil {
		return m.updateFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	m.passwordHash = passwordHash
	return nil
}

func (m *mockUserRepository) SetOTP(ctx context.Context, userID string, code *string, expiresAt *time.Time) error {
	m.otpCodes = append(m.otpCodes, code)
	if m.setOTPFn != nil {
		return m.setOTPFn(ctx, userID, code, expiresAt)
	}
	return nil
}

func (m *mockUserRepository) ConfirmEmail(ctx context.Context, userID string) error {
	m.confirmed = append(m.confirmed, userID)
	return nil
}

// RecordOTPFailure counts across calls so tests can drive the discard threshold.
func (m *mockUserRepository) RecordOTPFailure(ctx context.Context, userID string, maxAttempts int) (int, error) {
	m.otpFailures++
	return m.otpFailures, nil
}

func (m *mockUserRepository) RecordLoginFailure(ctx context.Context, userID string, maxAttempts int, lockUntil time.Time) (*time.Time, error) {
	m.loginFailures++
	if m.loginFailureFn != nil {
		return m.loginFailureFn(ctx, userID, maxAttempts, lockUntil)
	}
	if m.loginFailures >= maxAttempts {
		return &lockUntil, nil
	}
	return nil, nil
}

func (m *mockUserRepository) ClearLockout(ctx context.Context, userID string) error {
	m.clearedLockouts = append(m.clearedLockouts, userID)
	return nil
}

func (m *mockUserRepository) ToggleDeleted(ctx context.Context, userID string) (*model.StatusResult, error) {
	if m.toggleDeletedFn != nil {
		return m.toggleDeletedFn(ctx, userID)
	}
	return nil, model.ErrUserNotFound
}

func (m *mockUserRepository) SetSubscribedByEmail(ctx context.Context, email string, subscribed bool) error {
	for _, e := range m.subscribedEmails {
		if e == email {
			m.unsubscribed = append(m.unsubscribed, email)
			return nil
		}
	}
	return model.ErrUserNotFound
}

func (m *mockUserRepository) ListSubscribedEmails(ctx context.Context) ([]string, error) {
	return m.subscribedEmails, nil
}

func (m *mockUserRepository) List(ctx context.Context, limit, offset int) ([]model.User, error) {
	return []model.User{}, nil
}

func (m *mockUserRepository) Delete(ctx context.Context, tx *sqlx.Tx, userID string) error {
	m.deletedUserID = userID
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID)
	}
	return nil
}

func (m *mockUserRepository) GetRoles(ctx context.Context, userID string) ([]string, error) {
	if m.rolesFn != nil {
		return m.rolesFn(ctx, userID)
	}
	return []string{model.RoleUser}, nil
}

func (m *mockUserRepository) AddRole(ctx context.Context, tx *sqlx.Tx, userID, role string) error {
	m.grantedRoles = append(m.grantedRoles, role)
	return nil
}

func (m *mockUserRepository) ReplaceRoles(ctx context.Context, tx *sqlx.Tx, userID string, roles []string) error {
	m.replacedRoles = append(m.replacedRoles, roles)
	return nil
}

// ---------------------------------------------------------------------------
// refresh tokens
// ---------------------------------------------------------------------------

// memRefreshTokens keeps tokens in memory with the same guarded revoke
// semantics as the SQL implementation.
type memRefreshTokens struct {
	mu     sync.Mutex
	nextID int64
	rows   []*model.RefreshToken
}

func (m *memRefreshTokens) Create(ctx context.Context, tx *sqlx.Tx, token *model.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	token.ID = m.nextID
	row := *token
	m.rows = append(m.rows, &row)
	return nil
}

func (m *memRefreshTokens) FindByToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Token == token {
			out := *row
			return &out, nil
		}
	}
	return nil, model.ErrInvalidToken
}

func (m *memRefreshTokens) FindActiveForUser(ctx context.Context, userID string, now time.Time) (*model.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.UserID == userID && row.IsActive(now) {
			out := *row
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memRefreshTokens) Revoke(ctx context.Context, tx *sqlx.Tx, id int64, now time.Time, replacedBy *int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ID == id && row.RevokedOn == nil {
			revokedOn := now
			row.RevokedOn = &revokedOn
			row.ReplacedBy = replacedBy
			return true, nil
		}
	}
	return false, nil
}

func (m *memRefreshTokens) DeleteAllForUser(ctx context.Context, tx *sqlx.Tx, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*model.RefreshToken
	var n int64
	for _, row := range m.rows {
		if row.UserID == userID {
			n++
			continue
		}
		kept = append(kept, row)
	}
	m.rows = kept
	return n, nil
}

func (m *memRefreshTokens) get(token string) *model.RefreshToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Token == token {
			out := *row
			return &out
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// device tokens
// ---------------------------------------------------------------------------

type mockDeviceTokens struct {
	tokensByGlassesFn func(ctx context.Context, glassesID string) ([]string, error)
	deleteByTokensFn  func(ctx context.Context, tokens []string) (int64, error)

	registered   []string
	deleted      [][]string
	deletedOwned []string
	wipedUser    string
}

func (m *mockDeviceTokens) CreateIfNotExists(ctx context.Context, token string, glassesID *string, userID string) (bool, error) {
	for _, t := range m.registered {
		if t == token {
			return false, nil
		}
	}
	m.registered = append(m.registered, token)
	return true, nil
}

func (m *mockDeviceTokens) TokensByGlasses(ctx context.Context, glassesID string) ([]string, error) {
	if m.tokensByGlassesFn != nil {
		return m.tokensByGlassesFn(ctx, glassesID)
	}
	return []string{}, nil
}

func (m *mockDeviceTokens) DeleteByTokens(ctx context.Context, tokens []string) (int64, error) {
	m.deleted = append(m.deleted, tokens)
	if m.deleteByTokensFn != nil {
		return m.deleteByTokensFn(ctx, tokens)
	}
	return int64(len(tokens)), nil
}

func (m *mockDeviceTokens) DeleteForUser(ctx context.Context, token, userID string) (bool, error) {
	m.deletedOwned = append(m.deletedOwned, token)
	return true, nil
}

func (m *mockDeviceTokens) DeleteAllForUser(ctx context.Context, tx *sqlx.Tx, userID string) (int64, error) {
	m.wipedUser = userID
	return 1, nil
}

// ---------------------------------------------------------------------------
// glasses
// ---------------------------------------------------------------------------

type mockGlassesRepository struct {
	getByIDFn   func(ctx context.Context, id string) (*model.Glasses, error)
	existsFn    func(ctx context.Context, id string) (bool, error)
	lockFn      func(ctx context.Context, id string) (*model.Glasses, error)
	diseasesFn  func(ctx context.Context, id string) ([]string, error)
	setPlanCall *setPlanCall

	created         []*model.Glasses
	updated         []*model.Glasses
	addedDiseases   []string
	removedDiseases []string
}

type setPlanCall struct {
	MaxContacts int
	ExpiresAt   *time.Time
}

func (m *mockGlassesRepository) Create(ctx context.Context, g *model.Glasses) error {
	m.created = append(m.created, g)
	return nil
}

func (m *mockGlassesRepository) GetByID(ctx context.Context, id string) (*model.Glasses, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrGlassesNotFound
}

func (m *mockGlassesRepository) Exists(ctx context.Context, id string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, id)
	}
	return true, nil
}

func (m *mockGlassesRepository) Update(ctx context.Context, tx *sqlx.Tx, g *model.Glasses) error {
	m.updated = append(m.updated, g)
	return nil
}

func (m *mockGlassesRepository) Diseases(ctx context.Context, tx *sqlx.Tx, id string) ([]string, error) {
	if m.diseasesFn != nil {
		return m.diseasesFn(ctx, id)
	}
	return []string{}, nil
}

func (m *mockGlassesRepository) AddDiseases(ctx context.Context, tx *sqlx.Tx, id string, names []string) error {
	m.addedDiseases = append(m.addedDiseases, names...)
	return nil
}

func (m *mockGlassesRepository) RemoveDiseases(ctx context.Context, tx *sqlx.Tx, id string, names []string) error {
	m.removedDiseases = append(m.removedDiseases, names...)
	return nil
}

func (m *mockGlassesRepository) LockForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.Glasses, error) {
	if m.lockFn != nil {
		return m.lockFn(ctx, id)
	}
	return nil, model.ErrGlassesNotFound
}

func (m *mockGlassesRepository) SetPlan(ctx context.Context, tx *sqlx.Tx, id string, maxContacts int, expiresAt *time.Time) error {
	m.setPlanCall = &setPlanCall{MaxContacts: maxContacts, ExpiresAt: expiresAt}
	return nil
}

// ---------------------------------------------------------------------------
// contacts
// ---------------------------------------------------------------------------

// memContacts stores contacts in insertion order.
type memContacts struct {
	rows   []*model.Contact
	nextID int64
}

func (m *memContacts) seed(glassesID string, n int) {
	for i := 0; i < n; i++ {
		m.nextID++
		m.rows = append(m.rows, &model.Contact{ID: m.nextID, GlassesID: glassesID, FullName: "Contact"})
	}
}

func (m *memContacts) active(glassesID string) []*model.Contact {
	var out []*model.Contact
	for _, c := range m.rows {
		if c.GlassesID == glassesID && !c.IsDeleted {
			out = append(out, c)
		}
	}
	return out
}

func (m *memContacts) CountActive(ctx context.Context, tx *sqlx.Tx, glassesID string) (int, error) {
	return len(m.active(glassesID)), nil
}

func (m *memContacts) ListActive(ctx context.Context, glassesID string) ([]model.Contact, error) {
	out := []model.Contact{}
	for _, c := range m.active(glassesID) {
		out = append(out, *c)
	}
	return out, nil
}

func (m *memContacts) ListImages(ctx context.Context, glassesID string) ([]model.ContactImage, error) {
	out := []model.ContactImage{}
	for _, c := range m.active(glassesID) {
		if c.ImageURL != nil {
			out = append(out, model.ContactImage{ID: c.ID, FullName: c.FullName, ImageURL: c.ImageURL})
		}
	}
	return out, nil
}

func (m *memContacts) GetActive(ctx context.Context, glassesID string, id int64) (*model.Contact, error) {
	for _, c := range m.active(glassesID) {
		if c.ID == id {
			out := *c
			return &out, nil
		}
	}
	return nil, model.ErrContactNotFound
}

func (m *memContacts) Create(ctx context.Context, tx *sqlx.Tx, c *model.Contact) error {
	m.nextID++
	c.ID = m.nextID
	row := *c
	m.rows = append(m.rows, &row)
	return nil
}

func (m *memContacts) Update(ctx context.Context, c *model.Contact) error {
	for _, row := range m.active(c.GlassesID) {
		if row.ID == c.ID {
			*row = *c
			return nil
		}
	}
	return model.ErrContactNotFound
}

func (m *memContacts) SoftDelete(ctx context.Context, glassesID string, id int64) error {
	for _, row := range m.active(glassesID) {
		if row.ID == id {
			row.IsDeleted = true
			return nil
		}
	}
	return model.ErrContactNotFound
}

func (m *memContacts) SoftDeleteOverflow(ctx context.Context, tx *sqlx.Tx, glassesID string, keep int) (int64, error) {
	var n int64
	for i, row := range m.active(glassesID) {
		if i >= keep {
			row.IsDeleted = true
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// notifications
// ---------------------------------------------------------------------------

type mockNotificationRepository struct {
	createFn func(ctx context.Context, n *model.Notification) error
	listFn   func(ctx context.Context, glassesID string) ([]model.Notification, error)
	deleteFn func(ctx context.Context, glassesID string, id int64) error
	toggleFn func(ctx context.Context, glassesID string, id int64) (bool, error)

	created []*model.Notification
}

func (m *mockNotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	m.created = append(m.created, n)
	if m.createFn != nil {
		return m.createFn(ctx, n)
	}
	n.ID = int64(len(m.created))
	n.CreatedAt = time.Now()
	return nil
}

func (m *mockNotificationRepository) ListByGlasses(ctx context.Context, glassesID string) ([]model.Notification, error) {
	if m.listFn != nil {
		return m.listFn(ctx, glassesID)
	}
	return []model.Notification{}, nil
}

func (m *mockNotificationRepository) GetByID(ctx context.Context, glassesID string, id int64) (*model.Notification, error) {
	return nil, model.ErrNotificationNotFound
}

func (m *mockNotificationRepository) Delete(ctx context.Context, glassesID string, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, glassesID, id)
	}
	return nil
}

func (m *mockNotificationRepository) DeleteAllByGlasses(ctx context.Context, glassesID string) (int64, error) {
	return 0, nil
}

func (m *mockNotificationRepository) ToggleRead(ctx context.Context, glassesID string, id int64) (bool, error) {
	if m.toggleFn != nil {
		return m.toggleFn(ctx, glassesID, id)
	}
	return true, nil
}

func (m *mockNotificationRepository) MarkAllRead(ctx context.Context, glassesID string) (int64, error) {
	return 0, nil
}

func (m *mockNotificationRepository) UnreadCount(ctx context.Context, glassesID string) (int, error) {
	return 0, nil
}

// ---------------------------------------------------------------------------
// collaborators
// ---------------------------------------------------------------------------

// fakePush answers with a scripted result per token.
type fakePush struct {
	results func(token string) PushResult
	err     error

	calls []*PushMessage
}

func (f *fakePush) SendMulticast(ctx context.Context, msg *PushMessage) (*PushResponse, error) {
	f.calls = append(f.calls, msg)
	if f.err != nil {
		return nil, f.err
	}
	resp := &PushResponse{Results: make([]PushResult, len(msg.Tokens))}
	for i, token := range msg.Tokens {
		r := PushResult{Success: true}
		if f.results != nil {
			r = f.results(token)
		}
		resp.Results[i] = r
		if r.Success {
			resp.SuccessCount++
		} else {
			resp.FailureCount++
		}
	}
	return resp, nil
}

type sentEmail struct {
	To, Subject, Body string
}

type fakeEmailQueue struct {
	sent []sentEmail
	err  error
}

func (f *fakeEmailQueue) PublishEmail(ctx context.Context, to, subject, htmlBody string) error {
	f.sent = append(f.sent, sentEmail{To: to, Subject: subject, Body: htmlBody})
	return f.err
}

type fakeContactEvents struct {
	names []string
}

func (f *fakeContactEvents) PublishContactAdded(ctx context.Context, glassesID, contactName string) error {
	f.names = append(f.names, contactName)
	return nil
}

type fakeDeleter struct {
	keys []string
}

func (f *fakeDeleter) DeleteObject(ctx context.Context, key string) error {
	f.keys = append(f.keys, key)
	return nil
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
