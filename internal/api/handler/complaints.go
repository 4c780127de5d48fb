package handler

import (
	"net/http"

	"queryforum/backend/internal/apperrors"
	"queryforum/backend/internal/complaint"
	"queryforum/backend/internal/config"
	"queryforum/backend/internal/imagestore"
	"queryforum/backend/internal/models"
	"queryforum/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// maxRequestBytes leaves room for form fields next to a full-size image.
const maxRequestBytes = config.MaxImageBytes + 1<<20

type registerProfileRequest struct {
	Name               string `json:"name"`
	RegistrationNumber string `json:"registration_number"`
}

func (h *Handler) RegisterProfile(c *gin.Context) {
	var req registerProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperrors.Invalid("body", "malformed JSON"))
		return
	}
	profile, err := h.Complaints.RegisterProfile(c.Request.Context(), SessionFrom(c), req.Name, req.RegistrationNumber)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, profile)
}

func (h *Handler) GetProfile(c *gin.Context) {
	profile, err := h.Complaints.GetProfile(c.Request.Context(), SessionFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.Complaints.AccessibleCategories(c.Request.Context(), SessionFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (h *Handler) ListComplaints(c *gin.Context) {
	sort := storage.SortOrder(c.DefaultQuery("sort", string(storage.SortRecent)))
	views, err := h.Complaints.ListComplaints(c.Request.Context(), SessionFrom(c), c.Param("category"), sort)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"complaints": views})
}

type createComplaintRequest struct {
	Category    string `form:"category" json:"category"`
	Title       string `form:"title" json:"title"`
	Description string `form:"description" json:"description"`
	IsAnonymous bool   `form:"is_anonymous" json:"is_anonymous"`
}

// CreateComplaint accepts JSON, or a multipart form with an optional
// "image" file.
func (h *Handler) CreateComplaint(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBytes)

	var req createComplaintRequest
	if err := c.ShouldBind(&req); err != nil {
		h.respondError(c, apperrors.Invalid("body", "malformed request or image too large"))
		return
	}
	in := complaint.NewComplaint{
		Category:    req.Category,
		Title:       req.Title,
		Description: req.Description,
		IsAnonymous: req.IsAnonymous,
	}

	if c.ContentType() == binding.MIMEMultipartPOSTForm {
		if file, err := c.FormFile("image"); err == nil {
			f, err := file.Open()
			if err != nil {
				h.respondError(c, apperrors.Invalid("image", "unreadable file"))
				return
			}
			defer f.Close()
			in.Image = &imagestore.Upload{
				Filename:    file.Filename,
				ContentType: file.Header.Get("Content-Type"),
				Size:        file.Size,
				Body:        f,
			}
		}
	}

	view, err := h.Complaints.PostComplaint(c.Request.Context(), SessionFrom(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *Handler) GetComplaint(c *gin.Context) {
	detail, err := h.Complaints.GetComplaint(c.Request.Context(), SessionFrom(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type voteRequest struct {
	VoteType models.VoteType `json:"vote_type"`
}

func (h *Handler) CastVote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperrors.Invalid("body", "malformed JSON"))
		return
	}
	result, err := h.Votes.Cast(c.Request.Context(), SessionFrom(c), c.Param("id"), req.VoteType)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) UserVotes(c *gin.Context) {
	votes, err := h.Votes.UserVotes(c.Request.Context(), SessionFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"votes": votes})
}

type statusRequest struct {
	Status models.ComplaintStatus `json:"status"`
}

func (h *Handler) SetStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperrors.Invalid("body", "malformed JSON"))
		return
	}
	view, err := h.Complaints.SetStatus(c.Request.Context(), SessionFrom(c), c.Param("id"), req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type replyRequest struct {
	ReplyText string `json:"reply_text"`
}

func (h *Handler) PostReply(c *gin.Context) {
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperrors.Invalid("body", "malformed JSON"))
		return
	}
	reply, err := h.Complaints.PostReply(c.Request.Context(), SessionFrom(c), c.Param("id"), req.ReplyText)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reply)
}

func (h *Handler) ListReplies(c *gin.Context) {
	replies, err := h.Complaints.ListReplies(c.Request.Context(), SessionFrom(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if replies == nil {
		replies = []models.Reply{}
	}
	c.JSON(http.StatusOK, gin.H{"replies": replies})
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.Stats.Stats(c.Request.Context(), SessionFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
