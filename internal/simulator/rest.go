package simulator

import (
	"errors"

	"promochat/internal/dto"
	"promochat/pkg/chat/state"

	"github.com/gofiber/fiber/v2"
)

// RESTHandler serves the polling protocol.
type RESTHandler struct {
	engine *Engine
}

func NewRESTHandler(engine *Engine) *RESTHandler {
	return &RESTHandler{engine: engine}
}

func (h *RESTHandler) RegisterRoutes(r fiber.Router) {
	c := r.Group("/chat")
	c.Post("", h.Create)
	c.Get(":id", h.Show)
	c.Delete(":id", h.Delete)
	c.Post(":id/message", h.Submit)

	c.Get(":id/get_context", h.status(state.StageAnalyzingContext))
	c.Post(":id/create_context_details", h.trigger(state.StageFetchingContextDetail))
	c.Get(":id/get_context_details", h.status(state.StageFetchingContextDetail))
	c.Get(":id/get_promotions", h.status(state.StageSearchingResult))
	c.Post(":id/create_promotions_text", h.trigger(state.StageSynthesizingResponse))
	c.Get(":id/get_response", h.status(state.StageSynthesizingResponse))
}

func (h *RESTHandler) Create(ctx *fiber.Ctx) error {
	var req dto.CreateChatRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}
	chat := h.engine.CreateChat(req.UserID)
	return ctx.JSON(dto.CreateChatResponse{Id: dto.FlexibleID(chat.ID), UserID: dto.FlexibleID(req.UserID)})
}

func (h *RESTHandler) Show(ctx *fiber.Ctx) error {
	chat, ok := h.engine.chats.Get(ctx.Params("id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, ErrChatNotFound.Error())
	}
	chat.Mu.Lock()
	messages := append([]dto.ChatMessageDTO(nil), chat.Messages...)
	chat.Mu.Unlock()
	return ctx.JSON(fiber.Map{"id": dto.FlexibleID(chat.ID), "messages": messages})
}

func (h *RESTHandler) Delete(ctx *fiber.Ctx) error {
	if err := h.engine.DeleteChat(ctx.Params("id")); err != nil {
		return toFiberError(err)
	}
	return ctx.JSON(fiber.Map{"status": "deleted"})
}

func (h *RESTHandler) Submit(ctx *fiber.Ctx) error {
	var req dto.SubmitMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if _, err := h.engine.Submit(ctx.Params("id"), req.Message); err != nil {
		return toFiberError(err)
	}
	return ctx.JSON(fiber.Map{"status": "ok"})
}

func (h *RESTHandler) status(stage state.Stage) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		resp, err := h.engine.Status(ctx.Params("id"), stage)
		if err != nil {
			return toFiberError(err)
		}
		return ctx.JSON(resp)
	}
}

func (h *RESTHandler) trigger(stage state.Stage) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if err := h.engine.Trigger(ctx.Params("id"), stage); err != nil {
			return toFiberError(err)
		}
		return ctx.JSON(fiber.Map{"status": "started", "stage": stage})
	}
}

func toFiberError(err error) error {
	switch {
	case errors.Is(err, ErrChatNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrEmptyMessage):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return err
}
