package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joyzh1029/ALG/config"
	"github.com/joyzh1029/ALG/model"
	"github.com/joyzh1029/ALG/service"
	"github.com/joyzh1029/ALG/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

type DetectHandler struct {
	cfg          *config.Config
	redisService *service.RedisService
	pipeline     *service.Pipeline
}

func NewDetectHandler(cfg *config.Config, redis *service.RedisService, pipeline *service.Pipeline) *DetectHandler {
	return &DetectHandler{
		cfg:          cfg,
		redisService: redis,
		pipeline:     pipeline,
	}
}

// Detect handles an uploaded image: decode, run the helmet pipeline, return
// the frame result with an annotated image attached.
func (h *DetectHandler) Detect(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		utils.Logger.Error("failed to get uploaded file", zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "Please upload an image file",
			Error:   err.Error(),
		})
		return
	}

	if file.Size > h.cfg.Upload.MaxSize {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("File exceeds the size limit (%d MB)", h.cfg.Upload.MaxSize/(1024*1024)),
		})
		return
	}

	contentType := file.Header.Get("Content-Type")
	if !h.isAllowedType(contentType) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "Unsupported file type, only JPEG/PNG are accepted",
		})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "Failed to read upload",
			Error:   err.Error(),
		})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "Failed to read upload",
			Error:   err.Error(),
		})
		return
	}

	annotate := c.DefaultPostForm("annotate", "true") == "true"

	md5 := utils.BytesMD5(data)
	cacheKey := md5
	if annotate {
		cacheKey = md5 + ":annotated"
	}

	utils.Logger.Info("file uploaded",
		zap.String("filename", file.Filename),
		zap.String("md5", md5),
		zap.Int64("size", file.Size),
		zap.Bool("annotate", annotate))

	ctx := context.Background()
	cached, err := h.redisService.GetFrameResult(ctx, cacheKey)
	if err != nil {
		utils.Logger.Warn("failed to get cache", zap.Error(err))
	}
	if cached != nil {
		utils.Logger.Info("cache hit", zap.String("cache_key", cacheKey))
		c.JSON(http.StatusOK, model.DetectResponse{
			Success: true,
			Message: "Detection complete (cached)",
			Data:    cached,
		})
		return
	}

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil || img.Empty() {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "Invalid image file",
		})
		return
	}
	defer img.Close()

	result, err := h.pipeline.ProcessFrame(c.Request.Context(), img, annotate)
	if err != nil {
		utils.Logger.Error("failed to process frame", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "Detection failed",
			Error:   err.Error(),
		})
		return
	}

	if err := h.redisService.SetFrameResult(ctx, cacheKey, result); err != nil {
		utils.Logger.Warn("failed to set cache", zap.Error(err))
	}

	c.JSON(http.StatusOK, model.DetectResponse{
		Success: true,
		Message: "Detection complete",
		Data:    result,
	})
}

// GetByMD5 looks up a previously processed frame by its upload hash.
func (h *DetectHandler) GetByMD5(c *gin.Context) {
	md5 := c.Param("md5")
	if md5 == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "Missing md5 parameter",
		})
		return
	}

	ctx := context.Background()
	result, err := h.redisService.GetFrameResult(ctx, md5)
	if err != nil {
		utils.Logger.Error("failed to get frame result", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "Lookup failed",
			Error:   err.Error(),
		})
		return
	}

	if result == nil {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Success: false,
			Message: "No result found for this image",
		})
		return
	}

	c.JSON(http.StatusOK, model.DetectResponse{
		Success: true,
		Message: "Lookup complete",
		Data:    result,
	})
}

func (h *DetectHandler) isAllowedType(contentType string) bool {
	for _, allowed := range h.cfg.Upload.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}
