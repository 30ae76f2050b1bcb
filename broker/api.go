package broker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vasilii314/taskbroker/account"
	"github.com/vasilii314/taskbroker/auth"
)

type Api struct {
	Address string
	Port    int
	Broker  *Broker
	// Auth resolves the caller. Requests without credentials proceed as
	// anonymous and are refused by the endpoints that need a user.
	Auth   auth.Authenticator
	Router *chi.Mux
}

func (a *Api) initRouter() {
	a.Router = chi.NewRouter()
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.Logger)
	a.Router.Use(middleware.Recoverer)
	a.Router.Get("/healthz", a.HealthHandler)
	a.Router.Group(func(r chi.Router) {
		r.Use(a.authenticate)
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", a.ListTasksHandler)
			r.Post("/", a.CreateTaskHandler)
			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", a.GetTaskHandler)
				r.Get("/request", a.RequestTaskHandler)
				r.Post("/response", a.RespondTaskHandler)
				r.Post("/done", a.DoneTaskHandler)
				r.Get("/events", a.TaskHistoryHandler)
			})
		})
		r.Post("/accounts/register", a.RegisterUserHandler)
		r.Post("/charities", a.RegisterCharityHandler)
		r.Post("/benefactors", a.RegisterBenefactorHandler)
	})
}

// Handler returns the instrumented router.
func (a *Api) Handler() http.Handler {
	if a.Router == nil {
		a.initRouter()
	}
	return otelhttp.NewHandler(a.Router, "taskbroker",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Server returns an http.Server listening on Address:Port.
func (a *Api) Server() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.Address, a.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Start serves the API until ctx is cancelled, then drains in-flight
// requests for at most shutdownTimeout.
func (a *Api) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	srv := a.Server()
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[broker.Api] [Start] listening on http://%s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("[broker.Api] [Start] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type identityKey struct{}

// IdentityFrom returns the caller stored by the authentication middleware.
// The zero Identity is anonymous.
func IdentityFrom(ctx context.Context) account.Identity {
	id, _ := ctx.Value(identityKey{}).(account.Identity)
	return id
}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id account.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}
