package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/IshaanRSharma/chatdigest/api"
	"github.com/IshaanRSharma/chatdigest/llm/tokenizer"
	"github.com/IshaanRSharma/chatdigest/transcript"
	"github.com/IshaanRSharma/chatdigest/types"
	"go.uber.org/zap"
)

// DefaultDownloadFilename 是下载接口未指定文件名时使用的名称
const DefaultDownloadFilename = "previous_conversation_context.txt"

// multipartMemory 是解析 multipart 表单时保存在内存中的上限，超出部分写临时文件
const multipartMemory = 8 << 20

// =============================================================================
// 📄 解析 / 上传 / 下载 Handler
// =============================================================================

// ParseHandler 对话解析处理器
type ParseHandler struct {
	accountant *tokenizer.Accountant
	logger     *zap.Logger
}

// NewParseHandler 创建解析处理器
func NewParseHandler(accountant *tokenizer.Accountant, logger *zap.Logger) *ParseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if accountant == nil {
		accountant = tokenizer.NewAccountant(nil, logger)
	}
	return &ParseHandler{
		accountant: accountant,
		logger:     logger.With(zap.String("handler", "parse")),
	}
}

// HandleParse 解析对话：接受 JSON 请求体，或带 file / content 字段的 multipart 表单
// @Summary 解析对话
// @Tags 解析
// @Accept json,mpfd
// @Produce json
// @Param request body api.ParseRequest false "解析请求"
// @Success 200 {object} api.ParseResponse "解析结果"
// @Failure 400 {object} Response "无效请求"
// @Router /api/v1/parse [post]
func (h *ParseHandler) HandleParse(w http.ResponseWriter, r *http.Request) {
	req, filename, err := h.readParseRequest(w, r)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	if req.Format != "" && !transcript.Format(req.Format).Valid() {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "unsupported format "+req.Format, h.logger)
		return
	}

	parsed, err := transcript.ParseAs(req.Content, transcript.Format(req.Format))
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	count := h.accountant.CountFor(req.Content, req.TargetLLM)
	h.logger.Debug("transcript parsed",
		zap.String("format", string(parsed.Format)),
		zap.Int("messages", len(parsed.Transcript)),
		zap.Int("tokens", count.Tokens),
	)

	WriteSuccess(w, api.ParseResponse{
		Content:        req.Content,
		Messages:       api.MessagesFromTranscript(parsed.Transcript),
		MessageCount:   len(parsed.Transcript),
		TokenCount:     count.Tokens,
		Exact:          count.Exact,
		FormatDetected: string(parsed.Format),
		Filename:       filename,
	})
}

// HandleDownload 把内容作为纯文本附件返回，供客户端保存压缩结果
// @Summary 下载文本
// @Tags 解析
// @Accept json,mpfd
// @Produce plain
// @Success 200 {string} string "文本附件"
// @Router /api/download [post]
func (h *ParseHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	req, _, err := h.readParseRequest(w, r)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	filename := sanitizeFilename(req.Filename)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, req.Content)
}

// readParseRequest 按 Content-Type 读取 JSON 或 multipart 表单，返回请求与上传的文件名。
func (h *ParseHandler) readParseRequest(w http.ResponseWriter, r *http.Request) (api.ParseRequest, string, error) {
	var req api.ParseRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json":
		r.Body = http.MaxBytesReader(w, r.Body, DefaultMaxBodyBytes)
		if err := decodeStrict(r.Body, &req); err != nil {
			return req, "", err
		}
	case "multipart/form-data", "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(w, r.Body, DefaultMaxBodyBytes)
		filename, err := readForm(r, &req)
		if err != nil {
			return req, "", err
		}
		if strings.TrimSpace(req.Content) == "" {
			return req, "", types.NewError(types.ErrInvalidRequest, "no file or content provided").WithHTTPStatus(http.StatusBadRequest)
		}
		return req, filename, nil
	default:
		return req, "", types.NewError(types.ErrInvalidRequest, "Content-Type must be application/json or multipart/form-data").
			WithHTTPStatus(http.StatusUnsupportedMediaType)
	}

	if strings.TrimSpace(req.Content) == "" {
		return req, "", types.NewError(types.ErrInvalidRequest, "content is required").WithHTTPStatus(http.StatusBadRequest)
	}
	return req, "", nil
}

func decodeStrict(body io.Reader, dst *api.ParseRequest) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return bodyError(err)
	}
	return nil
}

// readForm 读取 multipart 表单：file 字段优先，其次 content 字段。
func readForm(r *http.Request, req *api.ParseRequest) (string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return "", bodyError(err)
		}
	} else if err := r.ParseForm(); err != nil {
		return "", bodyError(err)
	}

	req.Format = r.FormValue("format")
	req.TargetLLM = r.FormValue("target_llm")
	req.Filename = r.FormValue("filename")

	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", bodyError(err)
		}
		if !utf8.Valid(data) {
			return "", types.NewError(types.ErrInvalidRequest, fmt.Sprintf("file %q is not valid UTF-8 text", header.Filename)).
				WithHTTPStatus(http.StatusBadRequest)
		}
		req.Content = string(data)
		return header.Filename, nil
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		req.Content = r.FormValue("content")
		return "", nil
	default:
		return "", bodyError(err)
	}
}

// sanitizeFilename 去掉目录部分与控制字符，空名称使用默认文件名。
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '"' {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" {
		return DefaultDownloadFilename
	}
	return name
}
