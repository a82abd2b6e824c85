package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/config"
	"faceattend/internal/course"
	"faceattend/internal/faceclient"
	"faceattend/internal/httpmiddleware"
	"faceattend/internal/notify"
	"faceattend/internal/queue"
	"faceattend/internal/session"
	"faceattend/internal/snapshot"
	"faceattend/internal/store"
	"faceattend/internal/user"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

// faceDetector adapts the face service client to the ledger's detector port.
type faceDetector struct {
	client *faceclient.Client
}

func (d faceDetector) Detect(ctx context.Context, imageURL string) (attendance.Detection, error) {
	result, err := d.client.Detect(ctx, imageURL)
	if err != nil {
		return attendance.Detection{}, err
	}
	return attendance.Detection{Faces: result.FacesDetected, Score: result.Score}, nil
}

func openGateway(cfg config.App) (store.Gateway, error) {
	if cfg.StoreBackend == "localfile" {
		log.Printf("using local file store at %s", cfg.LocalFilePath)
		return store.NewLocalFile(cfg.LocalFilePath)
	}

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	pg := store.NewPostgres(db.Client)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pg.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return pg, nil
}

func runHTTP(cfg config.App) error {
	gateway, err := openGateway(cfg)
	if err != nil {
		return err
	}
	defer gateway.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "faceattend:checkins")
	}

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	if err := face.Health(context.Background()); err != nil {
		log.Printf("WARNING: face service not available: %v", err)
	}

	users := user.NewService(gateway)
	courses := course.NewRegistry(gateway, redisClient.Client, cfg.SelectionTTL)
	ledger := attendance.NewLedger(gateway, faceDetector{face}, cfg.DetectionTimeout, cfg.DayLocation())
	sessions := session.NewManager(redisClient.Client, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
	toasts := notify.New(redisClient.Client, cfg.NotificationTTL)

	// Snapshot uploader (nil when Cloudinary is not configured)
	var snaps *snapshot.Uploader
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		snaps = snapshot.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy})
	})

	r.POST("/register", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "missing required fields"})
			return
		}

		u, err := users.Register(c.Request.Context(), req.Username, req.Email, req.Password)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"success": false, "message": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "message": "User registered successfully", "user_id": u.ID})
	})

	r.POST("/login", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "missing username or password"})
			return
		}

		u, err := users.Authenticate(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"success": false, "message": err.Error()})
			return
		}

		tokens, err := sessions.Establish(c.Request.Context(), u.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "session start failed"})
			return
		}

		toasts.Push(c.Request.Context(), u.ID, notify.LevelSuccess, "Login successful!")
		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"message":       "Login successful",
			"user":          gin.H{"id": u.ID, "username": u.Username},
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	r.POST("/session/refresh", func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "refresh_token required"})
			return
		}

		userID, tokens, err := sessions.Resume(c.Request.Context(), req.RefreshToken)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"success": false, "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"user_id":       userID,
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	r.POST("/logout", func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "refresh_token required"})
			return
		}
		if err := sessions.Clear(c.Request.Context(), req.RefreshToken); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "logout failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	authGroup := r.Group("/v1", auth.UserAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.GET("/profile", func(c *gin.Context) {
		u, err := users.Get(c.Request.Context(), auth.UserID(c))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"success": false, "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "user": u})
	})

	authGroup.GET("/courses", func(c *gin.Context) {
		list, err := courses.List(c.Request.Context(), auth.UserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "courses": list})
	})

	authGroup.POST("/courses", func(c *gin.Context) {
		var req struct {
			CourseName string `json:"course_name" binding:"required"`
			CourseCode string `json:"course_code" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "missing required fields (course_name, course_code)"})
			return
		}

		userID := auth.UserID(c)
		crs, err := courses.Add(c.Request.Context(), userID, req.CourseName, req.CourseCode)
		if err != nil {
			toasts.Push(c.Request.Context(), userID, notify.LevelError, err.Error())
			c.JSON(statusFor(err), gin.H{"success": false, "message": err.Error()})
			return
		}
		toasts.Push(c.Request.Context(), userID, notify.LevelSuccess, "Course added successfully!")
		c.JSON(http.StatusCreated, gin.H{"success": true, "course": crs})
	})

	authGroup.DELETE("/courses/:id", func(c *gin.Context) {
		userID := auth.UserID(c)
		if err := courses.Remove(c.Request.Context(), userID, c.Param("id")); err != nil {
			c.JSON(statusFor(err), gin.H{"success": false, "message": err.Error()})
			return
		}
		toasts.Push(c.Request.Context(), userID, notify.LevelSuccess, "Course deleted successfully!")
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	authGroup.POST("/courses/:id/select", func(c *gin.Context) {
		userID := auth.UserID(c)
		if err := courses.SelectForAttendance(c.Request.Context(), userID, c.Param("id")); err != nil {
			c.JSON(statusFor(err), gin.H{"success": false, "message": err.Error()})
			return
		}
		toasts.Push(c.Request.Context(), userID, notify.LevelInfo, "Ready to mark attendance")
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	// Uploads a base64 snapshot or multipart file and returns the public URL
	// the caller passes to /v1/mark-attendance.
	authGroup.POST("/upload", func(c *gin.Context) {
		if snaps == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "image storage not configured"})
			return
		}

		var result *snapshot.Result
		var err error
		switch {
		case strings.Contains(c.ContentType(), "multipart/form-data"):
			file, header, ferr := c.Request.FormFile("file")
			if ferr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "file field required"})
				return
			}
			defer file.Close()
			data, ferr := io.ReadAll(file)
			if ferr != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "read file failed"})
				return
			}
			result, err = snaps.UploadBytes(data, header.Filename)

		default:
			var body struct {
				Data string `json:"data" binding:"required"`
			}
			if berr := c.ShouldBindJSON(&body); berr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "provide {\"data\": \"<base64 data URL>\"}"})
				return
			}
			result, err = snaps.UploadDataURL(body.Data)
		}

		if err != nil {
			log.Printf("snapshot upload failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "image upload failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "url": result.SecureURL, "public_id": result.PublicID})
	})

	authGroup.POST("/mark-attendance", func(c *gin.Context) {
		var req struct {
			CourseID string `json:"course_id"`
			ImageURL string `json:"image_url"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body"})
			return
		}

		userID := auth.UserID(c)
		courseID := req.CourseID
		if courseID == "" {
			courseID, _ = courses.SelectedCourse(c.Request.Context(), userID)
		}

		rec, err := ledger.Mark(c.Request.Context(), userID, courseID, req.ImageURL)
		if err != nil {
			toasts.Push(c.Request.Context(), userID, notify.LevelError, err.Error())
			c.JSON(statusFor(err), gin.H{"success": false, "message": err.Error()})
			return
		}

		courses.ConsumeSelection(c.Request.Context(), userID)
		if err := q.Publish(c.Request.Context(), queue.Message{Type: "checkin", Body: []byte(rec.ID)}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
		toasts.Push(c.Request.Context(), userID, notify.LevelSuccess, "Attendance marked successfully!")

		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Attendance marked successfully", "record": rec})
	})

	authGroup.GET("/attendance", func(c *gin.Context) {
		month := 0
		if v := c.Query("month"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				month = parsed
			}
		}
		records, err := ledger.History(c.Request.Context(), auth.UserID(c), month)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "records": records})
	})

	authGroup.GET("/stats", func(c *gin.Context) {
		userID := auth.UserID(c)
		records, err := ledger.History(c.Request.Context(), userID, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
			return
		}
		list, err := courses.List(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"stats":   attendance.ComputeStats(records, len(list), cfg.TotalExpectedDays),
		})
	})

	authGroup.GET("/notifications", func(c *gin.Context) {
		notifications, err := toasts.Recent(c.Request.Context(), auth.UserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "notifications": notifications})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, user.ErrDuplicateUser), errors.Is(err, course.ErrDuplicateCourse):
		return http.StatusConflict
	case errors.Is(err, user.ErrInvalidCredentials), errors.Is(err, session.ErrExpired):
		return http.StatusUnauthorized
	case errors.Is(err, user.ErrNotFound), errors.Is(err, course.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrAlreadyMarked), errors.Is(err, attendance.ErrCheckInPending):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrSnapshotRequired):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrNoFaceDetected), errors.Is(err, attendance.ErrAmbiguousFace):
		return http.StatusUnprocessableEntity
	case errors.Is(err, attendance.ErrDetectionTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, attendance.ErrFaceServiceUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
