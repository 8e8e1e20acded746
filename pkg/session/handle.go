package session

// Handle is the session of one request. It is not safe for concurrent use.
type Handle struct {
	data  Data
	dirty bool
	isNew bool
}

func (h *Handle) ID() string              { return h.data.ID }
func (h *Handle) ApplicationCode() string { return h.data.ApplicationCode }
func (h *Handle) AccessToken() string     { return h.data.AccessToken }
func (h *Handle) RefreshToken() string    { return h.data.RefreshToken }

// IsNew reports whether the session was created by this request.
func (h *Handle) IsNew() bool { return h.isNew }

// Dirty reports whether the session changed since it was loaded.
func (h *Handle) Dirty() bool { return h.dirty }

// Data returns a copy of the session data.
func (h *Handle) Data() Data {
	d := h.data
	if d.Pending != nil {
		p := *d.Pending
		d.Pending = &p
	}

	return d
}

func (h *Handle) SetApplicationCode(code string) {
	h.data.ApplicationCode = code
	h.dirty = true
}

// SetTokens stores a new token pair. An empty refresh token keeps the
// current one, since providers may not rotate it.
func (h *Handle) SetTokens(accessToken, refreshToken string) {
	h.data.AccessToken = accessToken
	if refreshToken != "" {
		h.data.RefreshToken = refreshToken
	}
	h.dirty = true
}

// BeginAuthorization remembers a started authorization, replacing any
// previous one.
func (h *Handle) BeginAuthorization(a Authorization) {
	h.data.Pending = &a
	h.dirty = true
}

// TakeAuthorization removes and returns the pending authorization, so that
// a callback can be processed once.
func (h *Handle) TakeAuthorization() (Authorization, bool) {
	if h.data.Pending == nil {
		return Authorization{}, false
	}

	a := *h.data.Pending
	h.data.Pending = nil
	h.dirty = true

	return a, true
}
