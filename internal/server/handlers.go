package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/safar/mute-store/internal/apperr"
	"github.com/safar/mute-store/internal/database"
	"github.com/safar/mute-store/internal/models"
	"github.com/safar/mute-store/internal/security"
	"github.com/safar/mute-store/internal/store"
)

const nextCursorHeader = "X-Next-Cursor"

var (
	errEmailTaken         = apperr.New(apperr.CodeValidation, "El correo ya está registrado.")
	errBadCredentials     = apperr.New(apperr.CodeValidation, "Credenciales inválidas")
	errNoProducts         = apperr.New(apperr.CodeNotFound, "No hay productos disponibles")
	errCustomerNotFound   = apperr.New(apperr.CodeNotFound, "Cliente no encontrado")
	errUserNotFound       = apperr.New(apperr.CodeNotFound, "Usuario no encontrado")
	errTokenMissing       = apperr.New(apperr.CodeUnauthorized, "Token no proporcionado")
	errTokenInvalid       = apperr.New(apperr.CodeUnauthorized, "Token inválido")
	errEmailQueryRequired = apperr.New(apperr.CodeValidation, "El parámetro email es obligatorio")
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type registerRequest struct {
	Name     string `json:"nombre" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Phone    string `json:"telefono"`
	Address  string `json:"direccion"`
}

func (s *Server) handleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req registerRequest
		if err := decodeJSONBody(w, r, &req); err != nil {
			respondError(ctx, s.log, w, err)
			return
		}
		email := normalizeEmail(req.Email)
		ctx = s.log.WithEmail(ctx, email)

		hash, err := security.HashPassword(req.Password)
		if err != nil {
			respondError(ctx, s.log, w, apperr.Wrap(apperr.CodeInternal, err, "hash password"))
			return
		}

		_, err = s.repo.CreateCustomer(ctx, store.NewCustomer{
			Name:         strings.TrimSpace(req.Name),
			Email:        email,
			PasswordHash: hash,
			Phone:        strings.TrimSpace(req.Phone),
			Address:      strings.TrimSpace(req.Address),
		})
		if err != nil {
			s.metrics.IncSignIn("register", "rejected")
			if errors.Is(err, database.ErrEmailTaken) {
				respondError(ctx, s.log, w, errEmailTaken)
				return
			}
			respondError(ctx, s.log, w, err)
			return
		}

		token, err := security.MintAccessToken(s.jwt, s.now(), email)
		if err != nil {
			respondError(ctx, s.log, w, apperr.Wrap(apperr.CodeInternal, err, "mint token"))
			return
		}

		s.metrics.IncSignIn("register", "ok")
		s.log.Info(ctx, "customer.registered")
		respondJSON(ctx, s.log, w, http.StatusOK, messageBody{Message: "Registro exitoso", Token: token})
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) handleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req loginRequest
		if err := decodeJSONBody(w, r, &req); err != nil {
			respondError(ctx, s.log, w, err)
			return
		}
		email := normalizeEmail(req.Email)
		ctx = s.log.WithEmail(ctx, email)

		customer, err := s.repo.GetCustomerByEmail(ctx, email)
		if err != nil && !errors.Is(err, database.ErrCustomerNotFound) {
			respondError(ctx, s.log, w, err)
			return
		}
		// Unknown email and wrong password answer identically. Provider
		// accounts have no password hash and cannot log in here.
		if customer == nil || customer.PasswordHash == "" || security.VerifyPassword(req.Password, customer.PasswordHash) != nil {
			s.metrics.IncSignIn("login", "rejected")
			respondError(ctx, s.log, w, errBadCredentials)
			return
		}

		token, err := security.MintAccessToken(s.jwt, s.now(), email)
		if err != nil {
			respondError(ctx, s.log, w, apperr.Wrap(apperr.CodeInternal, err, "mint token"))
			return
		}

		s.metrics.IncSignIn("login", "ok")
		respondJSON(ctx, s.log, w, http.StatusOK, messageBody{Message: "Login exitoso", Token: token})
	}
}

func (s *Server) handleProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		header := r.Header.Get("Authorization")
		if strings.TrimSpace(header) == "" {
			respondError(ctx, s.log, w, errTokenMissing)
			return
		}
		raw, ok := security.BearerToken(header)
		if !ok {
			respondError(ctx, s.log, w, errTokenInvalid)
			return
		}
		claims, err := security.ParseAccessToken(s.jwt, raw)
		if err != nil {
			respondError(ctx, s.log, w, apperr.Wrap(apperr.CodeUnauthorized, err, errTokenInvalid.Message()))
			return
		}

		customer, err := s.repo.GetCustomerByEmail(ctx, claims.Email)
		if err != nil {
			if errors.Is(err, database.ErrCustomerNotFound) {
				respondError(ctx, s.log, w, errUserNotFound)
				return
			}
			respondError(ctx, s.log, w, err)
			return
		}

		respondJSON(ctx, s.log, w, http.StatusOK, customer)
	}
}

type providerUserRequest struct {
	ID    string `json:"id" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name"`
}

func (s *Server) handleProviderUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req providerUserRequest
		if err := decodeJSONBody(w, r, &req); err != nil {
			respondError(ctx, s.log, w, err)
			return
		}
		email := normalizeEmail(req.Email)
		ctx = s.log.WithEmail(ctx, email)

		_, created, err := s.repo.UpsertProviderCustomer(ctx, strings.TrimSpace(req.ID), email, strings.TrimSpace(req.Name))
		if err != nil {
			respondError(ctx, s.log, w, apperr.Wrap(apperr.CodeInternal, err, "Error al guardar usuario"))
			return
		}

		msg := "Usuario ya existe"
		if created {
			msg = "Usuario registrado exitosamente"
			s.log.Info(ctx, "customer.provider_linked")
		}
		respondJSON(ctx, s.log, w, http.StatusOK, messageBody{Message: msg})
	}
}

func (s *Server) handleProducts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		products, err := s.repo.ListProducts(ctx)
		if err != nil {
			if errors.Is(err, database.ErrNoProducts) {
				respondError(ctx, s.log, w, errNoProducts)
				return
			}
			respondError(ctx, s.log, w, err)
			return
		}

		respondJSON(ctx, s.log, w, http.StatusOK, products)
	}
}

func (s *Server) handlePurchase() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var order models.Order
		if err := decodeJSONBody(w, r, &order); err != nil {
			s.metrics.IncPurchase("invalid")
			respondError(ctx, s.log, w, err)
			return
		}
		order.CustomerEmail = normalizeEmail(order.CustomerEmail)
		ctx = s.log.WithEmail(ctx, order.CustomerEmail)

		purchase, err := s.repo.CreatePurchase(ctx, order)
		if err != nil {
			if errors.Is(err, database.ErrCustomerNotFound) {
				s.metrics.IncPurchase("unknown_customer")
				respondError(ctx, s.log, w, errCustomerNotFound)
				return
			}
			s.metrics.IncPurchase("failed")
			respondError(ctx, s.log, w, err)
			return
		}

		s.metrics.IncPurchase("stored")
		s.log.Info(s.log.WithFields(ctx, map[string]any{
			"order_number": purchase.OrderNumber,
			"total":        purchase.Total.StringFixed(2),
			"lines":        len(purchase.Items),
		}), "purchase.stored")
		respondJSON(ctx, s.log, w, http.StatusOK, messageBody{Message: "Compra registrada con éxito", ID: purchase.OrderNumber})
	}
}

func (s *Server) handlePurchaseHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		q := r.URL.Query()

		email := normalizeEmail(q.Get("email"))
		if email == "" {
			respondError(ctx, s.log, w, errEmailQueryRequired)
			return
		}
		limit := 0
		if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				respondError(ctx, s.log, w, apperr.New(apperr.CodeValidation, "El parámetro limit debe ser un entero positivo"))
				return
			}
			limit = n
		}

		page, err := s.repo.ListPurchasesByEmail(ctx, email, q.Get("cursor"), limit)
		if err != nil {
			if errors.Is(err, store.ErrInvalidCursor) {
				respondError(ctx, s.log, w, apperr.Wrap(apperr.CodeValidation, err, "Cursor inválido"))
				return
			}
			respondError(ctx, s.log, w, err)
			return
		}

		if page.NextCursor != "" {
			w.Header().Set(nextCursorHeader, page.NextCursor)
		}
		respondJSON(ctx, s.log, w, http.StatusOK, page.Items)
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := s.repo.Ping(ctx); err != nil {
			respondError(ctx, s.log, w, apperr.Wrap(apperr.CodeDependency, err, "database unavailable"))
			return
		}
		respondJSON(ctx, s.log, w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
