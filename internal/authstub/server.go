// Package authstub is a development stand-in for the clinic auth API. It
// serves /auth/login and /auth/change-password with the same wire format,
// keeping staff users and patients in memory.
package authstub

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultAdminEmail    = "admin@clinic.com"
	DefaultAdminPassword = "admin123"
	minPasswordLength    = 6
)

var errUnauthorized = errors.New("unauthorized")

type Config struct {
	Secret   string
	TokenTTL time.Duration
	// HashCost defaults to bcrypt.DefaultCost.
	HashCost int
}

type account struct {
	id          int64
	nome        string
	email       string
	hash        []byte
	tipo        string
	patient     bool
	firstAccess bool
}

func (a account) subject() string {
	if a.patient {
		return fmt.Sprintf("patient:%d", a.id)
	}
	return fmt.Sprintf("user:%d", a.id)
}

type Server struct {
	secret   []byte
	tokenTTL time.Duration
	hashCost int

	mu       sync.RWMutex
	nextID   int64
	users    map[string]*account
	patients map[string]*account
	bySub    map[string]*account
}

func New(cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("authstub: secret is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 8 * time.Hour
	}
	if cfg.HashCost == 0 {
		cfg.HashCost = bcrypt.DefaultCost
	}

	s := &Server{
		secret:   []byte(cfg.Secret),
		tokenTTL: cfg.TokenTTL,
		hashCost: cfg.HashCost,
		users:    map[string]*account{},
		patients: map[string]*account{},
		bySub:    map[string]*account{},
	}

	if err := s.AddStaff("Administrador", DefaultAdminEmail, DefaultAdminPassword, "admin"); err != nil {
		return nil, err
	}

	return s, nil
}

// AddStaff registers a clinic user; tipo is "admin" or "default".
func (s *Server) AddStaff(nome string, email string, password string, tipo string) error {
	tipo = strings.ToLower(strings.TrimSpace(tipo))
	if tipo == "" {
		tipo = "default"
	}
	if tipo != "admin" && tipo != "default" {
		return fmt.Errorf("authstub: invalid tipo %q", tipo)
	}
	return s.add(account{nome: nome, email: email, tipo: tipo}, password)
}

// AddPatient registers a patient. New patients normally start with
// firstAccess set until they replace the password they were given.
func (s *Server) AddPatient(nome string, email string, password string, firstAccess bool) error {
	return s.add(account{nome: nome, email: email, patient: true, firstAccess: firstAccess}, password)
}

func (s *Server) add(a account, password string) error {
	a.email = strings.ToLower(strings.TrimSpace(a.email))
	if a.email == "" || utf8.RuneCountInString(password) < minPasswordLength {
		return errors.New("authstub: email and a password of at least 6 characters are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return err
	}
	a.hash = hash

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.users
	if a.patient {
		target = s.patients
	}
	if _, exists := target[a.email]; exists {
		return fmt.Errorf("authstub: %s already exists", a.email)
	}

	s.nextID++
	a.id = s.nextID
	target[a.email] = &a
	s.bySub[a.subject()] = &a
	return nil
}

// FirstAccess reports the stored flag of a patient.
func (s *Server) FirstAccess(email string) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patients[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return false, false
	}
	return p.firstAccess, true
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/auth/login", s.login)
	r.Post("/auth/change-password", s.changePassword)
	return r
}

type loginRequest struct {
	Email string `json:"email"`
	Senha string `json:"senha"`
}

type changePasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// login checks clinic users first, then patients.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload loginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(payload.Email))
	if email == "" || payload.Senha == "" {
		writeError(w, http.StatusBadRequest, "email e senha são obrigatórios")
		return
	}

	s.mu.RLock()
	var matched *account
	for _, candidates := range []map[string]*account{s.users, s.patients} {
		a, ok := candidates[email]
		if ok && bcrypt.CompareHashAndPassword(a.hash, []byte(payload.Senha)) == nil {
			copied := *a
			matched = &copied
			break
		}
	}
	s.mu.RUnlock()

	if matched == nil {
		writeError(w, http.StatusUnauthorized, "credenciais inválidas")
		return
	}

	token, err := s.signToken(*matched)
	if err != nil {
		slog.Error("authstub: sign token", "error", err)
		writeError(w, http.StatusInternalServerError, "erro interno")
		return
	}

	user := map[string]any{
		"id":    matched.id,
		"nome":  matched.nome,
		"email": matched.email,
	}
	role := "patient"
	if !matched.patient {
		user["tipo"] = matched.tipo
		role = matched.tipo
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":         user,
		"access_token": token,
		"role":         role,
		"first_access": matched.patient && matched.firstAccess,
	})
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	sub, err := s.subjectFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "token inválido")
		return
	}

	var payload changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if utf8.RuneCountInString(payload.NewPassword) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "a nova senha deve ter pelo menos 6 caracteres")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(payload.NewPassword), s.hashCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "erro interno")
		return
	}

	s.mu.Lock()
	a, ok := s.bySub[sub]
	if ok {
		a.hash = hash
		a.firstAccess = false
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusUnauthorized, "token inválido")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "senha alterada com sucesso"})
}

func (s *Server) signToken(a account) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  a.subject(),
		"role": a.tipo,
		"jti":  uuid.NewString(),
		"iat":  now.Unix(),
		"exp":  now.Add(s.tokenTTL).Unix(),
	})
	return token.SignedString(s.secret)
}

func (s *Server) subjectFrom(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", errUnauthorized
	}

	parsed, err := jwt.Parse(strings.TrimSpace(header[7:]), func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errUnauthorized
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", errUnauthorized
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errUnauthorized
	}
	return sub, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
