package api

import (
	"github.com/example/task-tracker/errs"
	"github.com/example/task-tracker/logging"
	"github.com/example/task-tracker/modules/activity"
	"github.com/example/task-tracker/modules/auth"
	"github.com/example/task-tracker/modules/tasks"
	"github.com/gofiber/fiber/v2"
)

var log = logging.Module("api")

// Handlers contains HTTP handlers for the API.
type Handlers struct {
	auth     auth.AuthPort
	tasks    tasks.TaskPort
	activity activity.ActivityPort
	schemas  schemaSet
}

// NewHandlers creates a new Handlers instance. activityPort may be nil.
func NewHandlers(authPort auth.AuthPort, taskPort tasks.TaskPort, activityPort activity.ActivityPort) (*Handlers, error) {
	schemas, err := loadSchemas()
	if err != nil {
		return nil, err
	}
	return &Handlers{
		auth:     authPort,
		tasks:    taskPort,
		activity: activityPort,
		schemas:  schemas,
	}, nil
}

// statusOf maps an error kind to its HTTP status.
func statusOf(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation:
		return fiber.StatusBadRequest
	case errs.KindUnauthorized:
		return fiber.StatusUnauthorized
	case errs.KindForbidden:
		return fiber.StatusForbidden
	case errs.KindNotFound:
		return fiber.StatusNotFound
	case errs.KindConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// writeError renders err as an ErrorResponse. Internal errors are logged and
// replaced by an opaque message.
func writeError(c *fiber.Ctx, err error) error {
	kind := errs.KindOf(err)
	if kind == errs.KindInternal {
		log.WithError(err).WithField("path", c.Path()).Error("internal error")
	}
	payload := errs.ToPayload(err)
	return c.Status(statusOf(kind)).JSON(ErrorResponse{
		Error:   string(payload.Kind),
		Message: payload.Message,
		Fields:  payload.Fields,
	})
}

func (h *Handlers) bind(c *fiber.Ctx, schema string, dst any) error {
	return h.schemas.decode(schema, c.Body(), dst)
}

// Register handles user registration.
func (h *Handlers) Register(c *fiber.Ctx) error {
	var req auth.RegisterRequest
	if err := h.bind(c, schemaRegister, &req); err != nil {
		return writeError(c, err)
	}

	result, err := h.auth.Register(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(TokenResponse{Token: result.Token, User: result.User})
}

// Login handles user login.
func (h *Handlers) Login(c *fiber.Ctx) error {
	var req auth.LoginRequest
	if err := h.bind(c, schemaLogin, &req); err != nil {
		return writeError(c, err)
	}

	result, err := h.auth.Login(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(TokenResponse{Token: result.Token, User: result.User})
}

// Profile returns the current user's public record.
func (h *Handlers) Profile(c *fiber.Ctx) error {
	user, err := h.auth.GetUser(c.UserContext(), currentUser(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(UserEnvelope{User: *user})
}

// UpdateProfile changes the current user's username and email.
func (h *Handlers) UpdateProfile(c *fiber.Ctx) error {
	var req ProfileRequest
	if err := h.bind(c, schemaProfile, &req); err != nil {
		return writeError(c, err)
	}

	user, err := h.auth.UpdateProfile(c.UserContext(), auth.UpdateProfileRequest{
		UserID:   currentUser(c),
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(UserEnvelope{User: *user})
}

// ChangePassword replaces the current user's password.
func (h *Handlers) ChangePassword(c *fiber.Ctx) error {
	var req PasswordRequest
	if err := h.bind(c, schemaPassword, &req); err != nil {
		return writeError(c, err)
	}

	result, err := h.auth.ChangePassword(c.UserContext(), auth.ChangePasswordRequest{
		UserID:          currentUser(c),
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(PasswordResponse{Message: "password updated", Token: result.Token})
}

// DeleteAccount removes the current user and every task they own.
func (h *Handlers) DeleteAccount(c *fiber.Ctx) error {
	removed, err := h.auth.DeleteAccount(c.UserContext(), currentUser(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(DeleteAccountResponse{Message: "account deleted", TasksRemoved: removed})
}

// Activity returns the current user's recent lifecycle events.
func (h *Handlers) Activity(c *fiber.Ctx) error {
	if h.activity == nil {
		return c.JSON([]activity.Entry{})
	}
	entries, err := h.activity.Recent(c.UserContext(), currentUser(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(entries)
}

// ListPending returns the current user's open tasks.
func (h *Handlers) ListPending(c *fiber.Ctx) error {
	list, err := h.tasks.ListPending(c.UserContext(), currentUser(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(viewsOf(list))
}

// ListCompleted returns the current user's finished tasks.
func (h *Handlers) ListCompleted(c *fiber.Ctx) error {
	list, err := h.tasks.ListCompleted(c.UserContext(), currentUser(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(viewsOf(list))
}

// CreateTask stores a new task for the current user.
func (h *Handlers) CreateTask(c *fiber.Ctx) error {
	var req CreateTaskRequest
	if err := h.bind(c, schemaTaskCreate, &req); err != nil {
		return writeError(c, err)
	}
	items, err := req.items()
	if err != nil {
		return writeError(c, err)
	}

	created, err := h.tasks.Create(c.UserContext(), tasks.CreateTaskRequest{
		UserID:    currentUser(c),
		Name:      req.Name,
		Comment:   req.Comment,
		Checklist: items,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(viewOf(created))
}

// GetTask returns one of the current user's tasks.
func (h *Handlers) GetTask(c *fiber.Ctx) error {
	t, err := h.tasks.Get(c.UserContext(), currentUser(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(viewOf(t))
}

// UpdateTask applies a partial change to one of the current user's tasks.
func (h *Handlers) UpdateTask(c *fiber.Ctx) error {
	var body UpdateTaskRequest
	if err := h.bind(c, schemaTaskUpdate, &body); err != nil {
		return writeError(c, err)
	}
	patch, err := body.patch()
	if err != nil {
		return writeError(c, err)
	}

	t, err := h.tasks.Update(c.UserContext(), tasks.UpdateTaskRequest{
		UserID: currentUser(c),
		TaskID: c.Params("id"),
		Patch:  patch,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(viewOf(t))
}

// CompleteTask marks one of the current user's tasks as completed.
func (h *Handlers) CompleteTask(c *fiber.Ctx) error {
	t, err := h.tasks.Complete(c.UserContext(), currentUser(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(viewOf(t))
}

// DeleteTask removes one of the current user's tasks.
func (h *Handlers) DeleteTask(c *fiber.Ctx) error {
	if err := h.tasks.Delete(c.UserContext(), currentUser(c), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(OKResponse{OK: true})
}
