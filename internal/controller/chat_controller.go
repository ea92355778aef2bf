package controller

import (
	"errors"

	"agent-chat-engine/internal/dto"
	"agent-chat-engine/internal/pkg/serverutils"
	"agent-chat-engine/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	SendChat(ctx *fiber.Ctx) error
	SelectOption(ctx *fiber.Ctx) error
	AnswerQuestion(ctx *fiber.Ctx) error
	GetTranscript(ctx *fiber.Ctx) error
	AbortTurn(ctx *fiber.Ctx) error
	NewChat(ctx *fiber.Ctx) error
	GetSessions(ctx *fiber.Ctx) error
	ResumeSession(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
	Upload(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
}

func NewChatController(chatService service.IChatService) IChatController {
	return &chatController{
		chatService: chatService,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Post("turn", c.SendChat)
	h.Post("turn/abort", c.AbortTurn)
	h.Post("question/select", c.SelectOption)
	h.Post("question/answer", c.AnswerQuestion)
	h.Get("transcript", c.GetTranscript)
	h.Post("new", c.NewChat)
	h.Get("sessions", c.GetSessions)
	h.Post("sessions/:id/resume", c.ResumeSession)
	h.Delete("sessions/:id", c.DeleteSession)
	h.Post("upload", c.Upload)
}

func (c *chatController) SendChat(ctx *fiber.Ctx) error {
	var req dto.SendChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.SendChat(ctx.Context(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Turn completed", res))
}

func (c *chatController) SelectOption(ctx *fiber.Ctx) error {
	var req dto.SelectOptionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res := c.chatService.SelectOption(&req)
	return ctx.JSON(serverutils.SuccessResponse("Option selected", res))
}

func (c *chatController) AnswerQuestion(ctx *fiber.Ctx) error {
	var req dto.AnswerQuestionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.AnswerQuestion(ctx.Context(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Answers submitted", res))
}

func (c *chatController) GetTranscript(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Success get transcript", c.chatService.GetTranscript()))
}

func (c *chatController) AbortTurn(ctx *fiber.Ctx) error {
	c.chatService.AbortTurn()
	return ctx.JSON(serverutils.SuccessResponse("Turn aborted", fiber.Map{}))
}

func (c *chatController) NewChat(ctx *fiber.Ctx) error {
	res, err := c.chatService.NewChat()
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("New chat started", res))
}

func (c *chatController) GetSessions(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Success get sessions", c.chatService.GetSessions()))
}

func (c *chatController) ResumeSession(ctx *fiber.Ctx) error {
	id := ctx.Params("id")

	res, err := c.chatService.ResumeSession(ctx.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "Session not found")
		}
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Session resumed", res))
}

func (c *chatController) DeleteSession(ctx *fiber.Ctx) error {
	id := ctx.Params("id")

	res, err := c.chatService.DeleteSession(ctx.Context(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Session deleted", res))
}

func (c *chatController) Upload(ctx *fiber.Ctx) error {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Missing file field")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	res, err := c.chatService.SaveUpload(fileHeader.Filename, fileHeader.Header.Get("Content-Type"), src)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("File uploaded", res))
}
