package httpapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"gallery_planner/internal/lib/logger/sl"
	mw "gallery_planner/internal/middleware"
	httprouters "gallery_planner/internal/transport/http"
	"gallery_planner/internal/transport/http/dto/response"

	"github.com/go-playground/validator/v10"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

type Server struct {
	log     *slog.Logger
	e       *echo.Echo
	routers *httprouters.Routers
	host    string
	port    string
	token   string
	health  []func(context.Context) error
}

func New(log *slog.Logger, token string, host, port string, routers *httprouters.Routers, health ...func(context.Context) error) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	validate := validator.New()
	e.Validator = &CustomValidator{validator: validate}

	e.Use(middleware.Recover())
	e.Use(mw.PrometheusMetrics)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				slog.String("method", v.Method),
				slog.String("URI", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote ip", v.RemoteIP),
			}
			if v.Error != nil {
				attrs = append(attrs, sl.Err(v.Error))
			}
			log.Info("request", attrs...)

			return nil
		},
	}))

	return &Server{
		log:     log,
		e:       e,
		routers: routers,
		host:    host,
		port:    port,
		token:   token,
		health:  health,
	}
}

// Handler отдаёт echo как http.Handler, в тестах без сокета
func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) MustRun() {
	const op = "http.Server.MustRun"

	s.log.Info(op, slog.String("Start", "server"), slog.String("addr", s.addr()))

	if err := s.Start(); err != nil {
		panic(err)
	}
}

func (s *Server) addr() string {
	return net.JoinHostPort(s.host, s.port)
}

func (s *Server) Start() error {
	const op = "http.Server.Start"

	if err := s.e.Start(s.addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server stopped: %w", op, err)
	}

	return nil
}

func (s *Server) Stop() error {
	const op = "http.Server.Stop"

	optCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	s.log.Info("stopping", slog.String("op", op))

	if err := s.e.Shutdown(optCtx); err != nil {
		return fmt.Errorf("%s could not shutdown server gracefuly: %w", op, err)
	}

	return nil
}

// ServeArtifacts отдаёт сохранённые файлы по префиксу URL
func (s *Server) ServeArtifacts(prefix, dir string) {
	s.e.Static(prefix, dir)
}

func (s *Server) BuildRouters() {
	s.e.GET("/health", s.routers.Health(s.health...))
	s.e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	swagger := s.e.Group("/swag")
	{
		swagger.GET("/swagger/*", echoSwagger.WrapHandler)
	}

	api := s.e.Group("/api/v1")
	api.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(s.token),
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed)
		},
	}))
	{
		galleryGroup := api.Group("/galleries")
		{
			galleryGroup.POST("", s.routers.CreateGallery)
			galleryGroup.GET("", s.routers.ListGalleries)
			galleryGroup.GET("/:id", s.routers.GetGallery)
			galleryGroup.PATCH("/:id", s.routers.UpdateGallery)
			galleryGroup.DELETE("/:id", s.routers.DeleteGallery)

			galleryGroup.POST("/:id/slots", s.routers.AllocateSlot)
			galleryGroup.GET("/:id/slots", s.routers.ListSlots)

			galleryGroup.POST("/:id/media", s.routers.UploadMedia)
			galleryGroup.GET("/:id/media", s.routers.ListMedia)

			galleryGroup.GET("/:id/calendar", s.routers.GalleryCalendar)
			galleryGroup.PUT("/:id/calendar/:date/:letter", s.routers.ScheduleSlot)
			galleryGroup.DELETE("/:id/calendar/:date/:letter", s.routers.UnscheduleSlot)
		}

		slotGroup := api.Group("/slots")
		{
			slotGroup.PATCH("/:id", s.routers.UpdateSlot)
			slotGroup.DELETE("/:id", s.routers.DeleteSlot)
			slotGroup.POST("/:id/images", s.routers.AttachImage)
			slotGroup.PUT("/:id/images/order", s.routers.ReorderImages)
		}

		mediaGroup := api.Group("/media")
		{
			mediaGroup.POST("/:id/variants", s.routers.CreateVariant)
			mediaGroup.GET("/:id/variants", s.routers.ListVariants)
			mediaGroup.DELETE("/:id", s.routers.DeleteMedia)
		}

		api.GET("/calendar", s.routers.Calendar)
		api.POST("/admin/reconcile", s.routers.Reconcile)
	}
}
