package server

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"fundsphere/internal/media"
	"fundsphere/internal/models"
	"fundsphere/internal/service"

	"github.com/gofiber/fiber/v2"
)

type milestoneRequest struct {
	Percentage  int    `json:"percentage"`
	Description string `json:"description"`
}

type createCampaignRequest struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	GoalAmount  float64            `json:"goalAmount"`
	Milestones  []milestoneRequest `json:"milestones"`
	// Deadline accepts RFC 3339 timestamps or plain dates (YYYY-MM-DD, UTC).
	Deadline string `json:"deadline"`
}

func parseDeadline(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, models.NewValidationError("Deadline must be a valid date")
}

// CreateCampaign handles POST /api/campaigns
// @Summary Create a draft campaign
// @Tags campaigns
// @Accept json
// @Produce json
// @Param request body createCampaignRequest true "Campaign"
// @Success 201 {object} object{msg=string,campaign=models.Campaign}
// @Failure 400 {object} models.ErrorResponse
// @Router /campaigns [post]
func (s *Server) CreateCampaign(c *fiber.Ctx) error {
	var req createCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}
	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		return respondError(c, err)
	}

	milestones := make([]models.Milestone, 0, len(req.Milestones))
	for _, m := range req.Milestones {
		milestones = append(milestones, models.Milestone{Percentage: m.Percentage, Description: m.Description})
	}

	campaign, err := s.campaignService.Create(c.UserContext(), service.CreateCampaignInput{
		CreatorID:   currentActor(c).ID,
		Title:       req.Title,
		Description: req.Description,
		GoalAmount:  req.GoalAmount,
		Milestones:  milestones,
		Deadline:    deadline,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"msg":      "Campaign created",
		"campaign": campaign,
	})
}

func uploadedFiles(headers []*multipart.FileHeader) []media.File {
	files := make([]media.File, 0, len(headers))
	for _, fh := range headers {
		files = append(files, media.File{
			Name:     fh.Filename,
			MimeType: fh.Header.Get(fiber.HeaderContentType),
			Size:     fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return files
}

// UploadCampaignMedia handles POST /api/campaigns/:id/media
// @Summary Attach media to a campaign
// @Description Uploads files from the multipart field "media". Files that fail validation or storage are listed in "failed".
// @Tags campaigns
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Campaign ID"
// @Param media formData file true "Media files (jpeg, png, mp4)"
// @Success 200 {object} object{msg=string,media=[]string,uploaded=int,failed=[]service.MediaFailure}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /campaigns/{id}/media [post]
func (s *Server) UploadCampaignMedia(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	var headers []*multipart.FileHeader
	if form, formErr := c.MultipartForm(); formErr == nil {
		headers = form.File["media"]
	}
	if len(headers) > maxFilesPerUpload {
		return respondError(c, models.NewValidationError(fmt.Sprintf("At most %d files can be uploaded at once", maxFilesPerUpload)))
	}

	result, err := s.campaignService.AttachMedia(c.UserContext(), id, currentActor(c), uploadedFiles(headers))
	if err != nil {
		return respondError(c, err)
	}

	msg := "Media uploaded"
	if result.Uploaded == 0 {
		msg = "No media uploaded"
	}
	return c.JSON(fiber.Map{
		"msg":      msg,
		"media":    result.Media,
		"uploaded": result.Uploaded,
		"failed":   result.Failed,
	})
}

// PreviewCampaign handles GET /api/campaigns/:id/preview
// @Summary Preview a campaign in any status
// @Tags campaigns
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 200 {object} object{campaign=models.Campaign}
// @Failure 404 {object} models.ErrorResponse
// @Router /campaigns/{id}/preview [get]
func (s *Server) PreviewCampaign(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	campaign, err := s.campaignService.Preview(c.UserContext(), id, currentActor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"campaign": campaign})
}

// PublishCampaign handles PATCH /api/campaigns/:id/publish
// @Summary Publish a draft campaign
// @Tags campaigns
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 200 {object} object{msg=string,campaign=models.Campaign}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /campaigns/{id}/publish [patch]
func (s *Server) PublishCampaign(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	campaign, err := s.campaignService.Publish(c.UserContext(), id, currentActor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"msg":      "Campaign published",
		"campaign": campaign,
	})
}

// ListPublishedCampaigns handles GET /api/campaigns/published
// @Summary Active published campaigns
// @Tags campaigns
// @Produce json
// @Success 200 {object} object{campaigns=[]models.Campaign}
// @Router /campaigns/published [get]
func (s *Server) ListPublishedCampaigns(c *fiber.Ctx) error {
	return s.listPublished(c, nil)
}

// ListMyPublishedCampaigns handles GET /api/campaigns/user/published
// @Summary The caller's active published campaigns
// @Tags campaigns
// @Produce json
// @Success 200 {object} object{campaigns=[]models.Campaign}
// @Router /campaigns/user/published [get]
func (s *Server) ListMyPublishedCampaigns(c *fiber.Ctx) error {
	creatorID := currentActor(c).ID
	return s.listPublished(c, &creatorID)
}

func (s *Server) listPublished(c *fiber.Ctx, creatorID *string) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), handlerTimeout)
	defer cancel()

	campaigns, err := s.campaignService.ListPublished(ctx, service.ListPublishedInput{CreatorID: creatorID})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"campaigns": campaigns})
}

// GetPublishedCampaign handles GET /api/campaigns/published/:id
// @Summary One active published campaign
// @Tags campaigns
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 200 {object} object{campaign=models.Campaign}
// @Failure 404 {object} models.ErrorResponse
// @Router /campaigns/published/{id} [get]
func (s *Server) GetPublishedCampaign(c *fiber.Ctx) error {
	return s.getPublished(c, nil)
}

// GetMyPublishedCampaign handles GET /api/campaigns/user/published/:id
// @Summary One of the caller's published campaigns, including expired ones
// @Tags campaigns
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 200 {object} object{campaign=models.Campaign}
// @Failure 404 {object} models.ErrorResponse
// @Router /campaigns/user/published/{id} [get]
func (s *Server) GetMyPublishedCampaign(c *fiber.Ctx) error {
	creatorID := currentActor(c).ID
	return s.getPublished(c, &creatorID)
}

func (s *Server) getPublished(c *fiber.Ctx, creatorID *string) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	campaign, err := s.campaignService.GetPublished(c.UserContext(), id, creatorID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"campaign": campaign})
}

// DeleteDraftCampaigns handles DELETE /api/campaigns/drafts
// @Summary Delete every draft campaign
// @Tags campaigns
// @Produce json
// @Success 200 {object} object{msg=string,deletedCount=int}
// @Failure 403 {object} models.ErrorResponse
// @Router /campaigns/drafts [delete]
func (s *Server) DeleteDraftCampaigns(c *fiber.Ctx) error {
	deleted, err := s.campaignService.DeleteDrafts(c.UserContext(), currentActor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"msg":          fmt.Sprintf("Deleted %d draft campaigns successfully", deleted),
		"deletedCount": deleted,
	})
}
