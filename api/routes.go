package api

import (
	"time"

	"github.com/gorilla/mux"

	"github.com/garnizeh/qna/internal/auth"
)

// Handlers groups what SetupRoutes mounts.
type Handlers struct {
	System    *SystemHandler
	Auth      *AuthHandler
	Questions *QuestionsHandler
	AI        *AIHandler
	Tokens    *auth.Tokens
	// Timeout bounds every request except the event stream.
	Timeout time.Duration
}

func SetupRoutes(h Handlers, version, buildTime string) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	// Open endpoints
	open := r.NewRoute().Subrouter()
	open.Use(TimeoutMiddleware(h.Timeout))
	open.HandleFunc("/version", h.System.VersionHandler(version, buildTime)).Methods("GET")
	open.HandleFunc("/health", h.System.HealthHandler).Methods("GET")
	open.HandleFunc("/v1/auth/signup", h.Auth.Signup).Methods("POST")
	open.HandleFunc("/v1/auth/signin", h.Auth.Signin).Methods("POST")

	// Reads: a token is optional, anonymous callers are guests
	read := r.PathPrefix("/v1").Subrouter()
	read.Use(TimeoutMiddleware(h.Timeout))
	read.Use(AuthMiddleware(h.Tokens, false))
	read.HandleFunc("/questions", h.Questions.ListQuestions).Methods("GET")
	read.HandleFunc("/questions/{id}", h.Questions.GetQuestion).Methods("GET")
	read.HandleFunc("/questions/{id}/messages", h.Questions.ListMessages).Methods("GET")

	// Writes: a token is required
	write := r.PathPrefix("/v1").Subrouter()
	write.Use(TimeoutMiddleware(h.Timeout))
	write.Use(AuthMiddleware(h.Tokens, true))
	write.HandleFunc("/auth/signout", h.Auth.Signout).Methods("POST")
	write.HandleFunc("/auth/me", h.Auth.Me).Methods("GET")
	write.HandleFunc("/questions", h.Questions.CreateQuestion).Methods("POST")
	write.HandleFunc("/questions/{id}", h.Questions.UpdateQuestion).Methods("PATCH")
	write.HandleFunc("/questions/{id}", h.Questions.DeleteQuestion).Methods("DELETE")
	write.HandleFunc("/questions/{id}/lock", h.Questions.Lock).Methods("POST")
	write.HandleFunc("/questions/{id}/unlock", h.Questions.Unlock).Methods("POST")
	write.HandleFunc("/questions/{id}/messages", h.Questions.AppendMessage).Methods("POST")
	write.HandleFunc("/questions/{id}/messages/{mid}", h.Questions.UpdateMessage).Methods("PATCH")
	write.HandleFunc("/questions/{id}/messages/{mid}", h.Questions.RemoveMessage).Methods("DELETE")
	write.HandleFunc("/questions/{id}/messages/{mid}/approve", h.Questions.ApproveMessage).Methods("POST")
	write.HandleFunc("/questions/{id}/messages/{mid}/reject", h.Questions.RejectMessage).Methods("POST")

	// Admin surface over prompts, schemas and drafts
	if h.AI != nil {
		admin := r.PathPrefix("/v1/ai").Subrouter()
		admin.Use(TimeoutMiddleware(h.Timeout))
		admin.Use(AuthMiddleware(h.Tokens, true))
		admin.Use(AdminOnly)
		admin.HandleFunc("/reload", h.AI.ReloadHandler).Methods("POST")
		admin.HandleFunc("/schemas", h.AI.ListSchemasHandler).Methods("GET")
		admin.HandleFunc("/schemas", h.AI.CreateOrUpdateSchemaHandler).Methods("PUT")
		admin.HandleFunc("/schemas/{version}", h.AI.GetSchemaHandler).Methods("GET")
		admin.HandleFunc("/schemas/{version}", h.AI.DeleteSchemaHandler).Methods("DELETE")
		admin.HandleFunc("/templates", h.AI.ListTemplatesHandler).Methods("GET")
		admin.HandleFunc("/templates", h.AI.CreateOrUpdateTemplateHandler).Methods("PUT")
		admin.HandleFunc("/templates/{name}/{version}", h.AI.GetTemplateHandler).Methods("GET")
		admin.HandleFunc("/templates/{name}/{version}", h.AI.DeleteTemplateHandler).Methods("DELETE")
		admin.HandleFunc("/drafts/{id}/preview", h.AI.PreviewDraftHandler).Methods("POST")
	}

	// The event stream is long-lived and takes no request timeout
	stream := r.PathPrefix("/v1").Subrouter()
	stream.Use(AuthMiddleware(h.Tokens, false))
	stream.HandleFunc("/questions/{id}/stream", h.Questions.Stream).Methods("GET")

	return r
}
