package redact

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"redactmail-server-go/src/configs"
	"redactmail-server-go/src/core/auth"
	"redactmail-server-go/src/core/email"
	"redactmail-server-go/src/core/providers/llm"
	"redactmail-server-go/src/core/providers/ocr"
	"redactmail-server-go/src/core/redaction"
	"redactmail-server-go/src/core/utils"
	"redactmail-server-go/src/models"
	"redactmail-server-go/src/task"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// classifierTemperature pins the region classifier to near-deterministic
// output regardless of the configured chat temperature.
const classifierTemperature = 0.1

type DefaultRedactService struct {
	logger *utils.Logger
	config *configs.Config
	db     *gorm.DB

	textLLM   llm.Provider
	regionLLM llm.Provider
	ocr       ocr.Provider

	pool        *task.WorkerPool
	coordinator *redaction.Coordinator
	dispatcher  *email.Dispatcher
	hub         *ProgressHub
	authToken   *auth.AuthToken
	upgrader    websocket.Upgrader
}

// NewDefaultRedactService wires providers, worker pool and pipeline from
// config. db may be nil when no DATABASE_URL is set.
func NewDefaultRedactService(config *configs.Config, logger *utils.Logger, db *gorm.DB) (*DefaultRedactService, error) {
	service := &DefaultRedactService{
		logger: logger,
		config: config,
		db:     db,
		hub:    NewProgressHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	service.authToken = auth.NewAuthToken(config.Server.Token)

	if err := service.initProviders(); err != nil {
		return nil, fmt.Errorf("init providers: %w", err)
	}

	service.pool = task.NewWorkerPool(task.ResourceConfig{MaxWorkers: 4})
	service.pool.Start()

	textRedactor := redaction.NewTextRedactor(service.textLLM, logger)
	classifier := redaction.NewRegionClassifier(service.regionLLM, logger)
	markup := redaction.NewMarkupEngine(logger)

	service.coordinator = redaction.NewCoordinator(textRedactor, service.ocr, classifier, markup, service.pool, logger)
	if config.Upload.MaxImages > 0 {
		service.coordinator.MaxImages = config.Upload.MaxImages
	}
	if config.Upload.MaxFileSize > 0 {
		service.coordinator.MaxImageBytes = config.Upload.MaxFileSize
	}

	service.dispatcher = email.NewDispatcher(config.Email, logger)

	return service, nil
}

// initProviders builds the selected LLM and OCR backends. The region
// classifier gets its own LLM instance with a pinned low temperature.
func (s *DefaultRedactService) initProviders() error {
	selectedLLM := s.config.SelectedModule["LLM"]
	if selectedLLM == "" {
		return fmt.Errorf("no LLM module selected")
	}
	llmConfig, ok := s.config.LLM[selectedLLM]
	if !ok {
		return fmt.Errorf("LLM module %s not configured", selectedLLM)
	}

	textConfig := &llm.Config{
		Type:        llmConfig.Type,
		ModelName:   llmConfig.ModelName,
		BaseURL:     llmConfig.BaseURL,
		APIKey:      llmConfig.APIKey,
		Temperature: llmConfig.Temperature,
		MaxTokens:   llmConfig.MaxTokens,
		TopP:        llmConfig.TopP,
	}
	textProvider, err := llm.Create(llmConfig.Type, textConfig)
	if err != nil {
		return fmt.Errorf("create text LLM provider %s: %w", selectedLLM, err)
	}
	s.textLLM = textProvider

	regionConfig := *textConfig
	regionConfig.Temperature = classifierTemperature
	regionProvider, err := llm.Create(llmConfig.Type, &regionConfig)
	if err != nil {
		return fmt.Errorf("create region LLM provider %s: %w", selectedLLM, err)
	}
	s.regionLLM = regionProvider
	s.logger.Info(fmt.Sprintf("LLM provider %s (%s) initialized", selectedLLM, llmConfig.ModelName))

	selectedOCR := s.config.SelectedModule["OCR"]
	if selectedOCR == "" {
		return fmt.Errorf("no OCR module selected")
	}
	ocrConfig, ok := s.config.OCR[selectedOCR]
	if !ok {
		return fmt.Errorf("OCR module %s not configured", selectedOCR)
	}
	ocrProvider, err := ocr.Create(ocrConfig.Type, &ocr.Config{
		Type:    ocrConfig.Type,
		BaseURL: ocrConfig.BaseURL,
		APIKey:  ocrConfig.APIKey,
		Engine:  ocrConfig.Engine,
	})
	if err != nil {
		return fmt.Errorf("create OCR provider %s: %w", selectedOCR, err)
	}
	s.ocr = ocrProvider
	s.logger.Info(fmt.Sprintf("OCR provider %s initialized", selectedOCR))

	return nil
}

// Start implements the RedactService interface and registers all routes.
func (s *DefaultRedactService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	apiGroup.GET("/redact", s.handleGet)
	apiGroup.POST("/redact", s.handlePost)
	apiGroup.OPTIONS("/redact", s.handleOptions)
	apiGroup.GET("/redact/progress", s.handleProgress)
	apiGroup.POST("/send", s.handleSend)
	apiGroup.OPTIONS("/send", s.handleOptions)
	apiGroup.POST("/auth", s.handleAuth)

	s.logger.Info("redact HTTP routes registered")
	return nil
}

// handleOptions answers CORS preflight.
func (s *DefaultRedactService) handleOptions(c *gin.Context) {
	s.addCORSHeaders(c)
	c.Status(http.StatusOK)
}

// handleGet reports service status.
func (s *DefaultRedactService) handleGet(c *gin.Context) {
	s.addCORSHeaders(c)
	c.String(http.StatusOK, fmt.Sprintf("redaction service running, LLM=%s OCR=%s",
		s.config.SelectedModule["LLM"], s.config.SelectedModule["OCR"]))
}

// handlePost runs the full redaction pipeline on one multipart request.
func (s *DefaultRedactService) handlePost(c *gin.Context) {
	s.addCORSHeaders(c)

	clientID, err := s.verifyAuth(c)
	if err != nil {
		s.respondError(c, http.StatusUnauthorized, err.Error())
		s.logger.Warn(fmt.Sprintf("redact auth failed: %v", err))
		return
	}

	req, requestID, err := s.parseMultipartRequest(c)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err.Error())
		s.logger.Warn(fmt.Sprintf("redact request parse failed: %v", err))
		return
	}

	s.logger.Debug(fmt.Sprintf("redact request %s: %d bytes of text, %d image(s)",
		requestID, len(req.Body), len(req.Images)))

	sink := func(ev redaction.ProgressEvent) {
		s.hub.Publish(requestID, ev)
	}
	result, err := s.coordinator.Run(c.Request.Context(), req, sink)
	s.hub.Close(requestID)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err.Error())
		s.logger.Warn(fmt.Sprintf("redact request %s rejected: %v", requestID, err))
		return
	}

	s.recordResult(requestID, clientID, result)

	response := buildRedactResponse(requestID, result)
	c.JSON(http.StatusOK, response)
}

// buildRedactResponse converts a pipeline result to the wire shape.
func buildRedactResponse(requestID string, result *redaction.Result) RedactResponse {
	response := RedactResponse{
		Success:   result.State == redaction.StateComplete,
		RequestID: requestID,
		State:     string(result.State),
		Events:    result.Events,
	}

	response.Text = &TextPayload{
		Body:        result.Text.Body,
		TotalTokens: result.Text.TotalTokens,
		Success:     result.Text.Success,
	}
	if result.Text.Err != nil {
		response.Text.Error = result.Text.Err.Error()
	}

	for _, img := range result.Images {
		payload := ImagePayload{
			ID:     img.ID,
			Failed: img.Failed,
			Error:  img.Error,
		}
		if img.Redacted != nil {
			payload.Redacted = base64.StdEncoding.EncodeToString(img.Redacted)
		}
		response.Images = append(response.Images, payload)
	}

	if !response.Success {
		response.Message = "text redaction failed, nothing was redacted"
	}
	return response
}

// handleProgress streams pipeline progress events over a websocket. The
// client passes the request_id it intends to POST with.
func (s *DefaultRedactService) handleProgress(c *gin.Context) {
	requestID := c.Query("request_id")
	if requestID == "" {
		s.respondError(c, http.StatusBadRequest, "missing request_id")
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("websocket upgrade failed: %v", err))
		return
	}
	defer conn.Close()

	ch := s.hub.Subscribe(requestID)
	defer s.hub.Unsubscribe(requestID, ch)

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-c.Request.Context().Done():
			return
		}
	}
}

// handleSend delivers the reviewed content through the transport chain.
func (s *DefaultRedactService) handleSend(c *gin.Context) {
	s.addCORSHeaders(c)

	if _, err := s.verifyAuth(c); err != nil {
		s.respondError(c, http.StatusUnauthorized, err.Error())
		return
	}

	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, fmt.Sprintf("malformed send request: %v", err))
		return
	}

	msg := &email.Message{
		To:      req.To,
		CC:      req.CC,
		Subject: req.Subject,
		Body:    req.Body,
	}
	for i, encoded := range req.Images {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, fmt.Sprintf("image %d is not valid base64", i+1))
			return
		}
		format := detectImageFormat(data)
		msg.Attachments = append(msg.Attachments, email.Attachment{
			Filename:    fmt.Sprintf("redacted_image_%d.%s", i+1, format),
			ContentType: "image/" + format,
			Content:     data,
		})
	}

	transport, err := s.dispatcher.Send(c.Request.Context(), msg)
	s.recordSend(req.RequestID, req.To, transport, err == nil)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("send failed for %s: %v", req.To, err))
		c.JSON(http.StatusBadGateway, SendResponse{Success: false, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SendResponse{Success: true, Transport: transport})
}

// handleAuth exchanges the shared server secret for a bearer token.
func (s *DefaultRedactService) handleAuth(c *gin.Context) {
	s.addCORSHeaders(c)

	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, "malformed auth request")
		return
	}
	if req.ClientID == "" || req.Secret != s.config.Server.Token {
		s.respondError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.authToken.GenerateToken(req.ClientID)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, "token generation failed")
		return
	}
	c.JSON(http.StatusOK, AuthResponse{Success: true, Token: token})
}

// verifyAuth checks the bearer token when auth is enabled and returns the
// client id it was issued to.
func (s *DefaultRedactService) verifyAuth(c *gin.Context) (string, error) {
	if !s.config.Server.Auth.Enabled {
		return c.GetHeader("Client-Id"), nil
	}

	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("missing or malformed authorization header")
	}

	isValid, clientID, err := s.authToken.VerifyToken(authHeader[7:])
	if err != nil || !isValid {
		return "", fmt.Errorf("invalid or expired token")
	}
	return clientID, nil
}

// settingOverride is the per-category shape of the settings form field.
// Enabled is a pointer so an omitted key keeps the default.
type settingOverride struct {
	Enabled     *bool  `json:"enabled"`
	Placeholder string `json:"placeholder"`
}

// parseMultipartRequest extracts the email body, per-request settings and
// uploaded images from the form.
func (s *DefaultRedactService) parseMultipartRequest(c *gin.Context) (*redaction.Request, string, error) {
	maxMemory := s.coordinator.MaxImageBytes * int64(s.coordinator.MaxImages)
	if err := c.Request.ParseMultipartForm(maxMemory); err != nil {
		return nil, "", fmt.Errorf("parse multipart form: %v", err)
	}

	requestID := c.Request.FormValue("request_id")
	if requestID == "" {
		requestID = uuid.NewString()
	}

	settings := redaction.DefaultSettings()
	settings.ApplyPlaceholderOverrides(s.config.Placeholders)
	if raw := c.Request.FormValue("settings"); raw != "" {
		overrides := make(map[string]settingOverride)
		if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
			return nil, "", fmt.Errorf("malformed settings field: %v", err)
		}
		for key, override := range overrides {
			cat, ok := redaction.ParseCategory(key)
			if !ok {
				return nil, "", fmt.Errorf("unknown redaction category %q", key)
			}
			setting := settings[cat]
			if override.Enabled != nil {
				setting.Enabled = *override.Enabled
			}
			if override.Placeholder != "" {
				setting.Placeholder = override.Placeholder
			}
			settings[cat] = setting
		}
	}

	req := &redaction.Request{
		Body:     c.Request.FormValue("body"),
		Settings: settings,
	}

	if c.Request.MultipartForm != nil {
		for _, header := range c.Request.MultipartForm.File["images"] {
			input, err := s.readImageFile(header)
			if err != nil {
				return nil, "", err
			}
			req.Images = append(req.Images, *input)
		}
	}

	if err := s.coordinator.Validate(req); err != nil {
		return nil, "", err
	}

	for _, img := range req.Images {
		if path, err := s.saveImageToFile(img.Data, img.ID, img.Format); err != nil {
			s.logger.Warn(fmt.Sprintf("saving upload %s failed: %v", img.ID, err))
		} else {
			s.logger.Debug(fmt.Sprintf("upload saved to %s", path))
		}
	}

	return req, requestID, nil
}

// readImageFile loads one upload and checks size and format.
func (s *DefaultRedactService) readImageFile(header *multipart.FileHeader) (*redaction.ImageInput, error) {
	if header.Size > s.coordinator.MaxImageBytes {
		return nil, fmt.Errorf("image %s exceeds the %dMB size limit",
			header.Filename, s.coordinator.MaxImageBytes/1024/1024)
	}

	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %v", header.Filename, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %v", header.Filename, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("upload %s is empty", header.Filename)
	}
	if !isValidImageFile(data) {
		return nil, fmt.Errorf("upload %s is not a supported image (JPEG, PNG, GIF, BMP, TIFF, WEBP)", header.Filename)
	}

	return &redaction.ImageInput{
		ID:     uuid.NewString(),
		Data:   data,
		Format: detectImageFormat(data),
	}, nil
}

// saveImageToFile keeps a copy of the upload under the configured dir.
func (s *DefaultRedactService) saveImageToFile(data []byte, id, format string) (string, error) {
	dir := s.config.Upload.Dir
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("create upload dir: %v", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s.%s", id, format))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write upload: %v", err)
	}
	return path, nil
}

// recordResult persists one finished run when a database is configured.
func (s *DefaultRedactService) recordResult(requestID, clientID string, result *redaction.Result) {
	if s.db == nil {
		return
	}

	failed := 0
	for _, img := range result.Images {
		if img.Failed {
			failed++
		}
	}

	events, err := json.Marshal(result.Events)
	if err != nil {
		events = []byte("[]")
	}

	record := models.RedactionRecord{
		RequestID:    requestID,
		ClientID:     clientID,
		State:        string(result.State),
		TokensUsed:   result.Text.TotalTokens,
		ImageCount:   len(result.Images),
		FailedImages: failed,
		Events:       datatypes.JSON(events),
	}
	if err := s.db.Create(&record).Error; err != nil {
		s.logger.Warn(fmt.Sprintf("persisting redaction record %s failed: %v", requestID, err))
	}
}

// recordSend persists one dispatch attempt when a database is configured.
func (s *DefaultRedactService) recordSend(requestID, recipient, transport string, success bool) {
	if s.db == nil {
		return
	}
	record := models.EmailRecord{
		RequestID: requestID,
		Recipient: recipient,
		Transport: transport,
		Success:   success,
	}
	if err := s.db.Create(&record).Error; err != nil {
		s.logger.Warn(fmt.Sprintf("persisting email record failed: %v", err))
	}
}

func isValidImageFile(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	return hasJPEGHeader(data) ||
		hasPNGHeader(data) ||
		hasGIFHeader(data) ||
		hasBMPHeader(data) ||
		hasTIFFHeader(data) ||
		hasWebPHeader(data)
}

func hasJPEGHeader(data []byte) bool {
	return len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8
}

func hasPNGHeader(data []byte) bool {
	return len(data) >= 8 &&
		data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 &&
		data[4] == 0x0D && data[5] == 0x0A && data[6] == 0x1A && data[7] == 0x0A
}

func hasGIFHeader(data []byte) bool {
	return len(data) >= 6 &&
		((data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 && data[4] == 0x37 && data[5] == 0x61) ||
			(data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 && data[4] == 0x39 && data[5] == 0x61))
}

func hasBMPHeader(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x42 && data[1] == 0x4D
}

func hasTIFFHeader(data []byte) bool {
	return len(data) >= 4 &&
		((data[0] == 0x49 && data[1] == 0x49 && data[2] == 0x2A && data[3] == 0x00) ||
			(data[0] == 0x4D && data[1] == 0x4D && data[2] == 0x00 && data[3] == 0x2A))
}

func hasWebPHeader(data []byte) bool {
	return len(data) >= 12 &&
		data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50
}

func detectImageFormat(data []byte) string {
	switch {
	case hasJPEGHeader(data):
		return "jpeg"
	case hasPNGHeader(data):
		return "png"
	case hasGIFHeader(data):
		return "gif"
	case hasBMPHeader(data):
		return "bmp"
	case hasTIFFHeader(data):
		return "tiff"
	case hasWebPHeader(data):
		return "webp"
	}
	return "jpeg"
}

func (s *DefaultRedactService) addCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Headers", "client-id, content-type, authorization")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
}

func (s *DefaultRedactService) respondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, RedactResponse{Success: false, Message: message})
}

// Cleanup releases providers and stops the worker pool.
func (s *DefaultRedactService) Cleanup() error {
	s.pool.Stop()
	for _, provider := range []interface{ Cleanup() error }{s.textLLM, s.regionLLM, s.ocr} {
		if provider == nil {
			continue
		}
		if err := provider.Cleanup(); err != nil {
			s.logger.Warn(fmt.Sprintf("provider cleanup failed: %v", err))
		}
	}
	s.logger.Info("redact service cleaned up")
	return nil
}
