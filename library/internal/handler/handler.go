package handler

import (
	"net/http"

	"github.com/Astemirdum/bookhub/library/internal/errs"
	"github.com/Astemirdum/bookhub/library/internal/model"
	md "github.com/Astemirdum/bookhub/pkg/middleware"
	"github.com/Astemirdum/bookhub/pkg/validate"
	_ "github.com/Astemirdum/bookhub/swagger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"
)

type Handler struct {
	bookSvc BookService
	log     *zap.Logger
}

func New(bookSvc BookService, log *zap.Logger) *Handler {
	return &Handler{
		bookSvc: bookSvc,
		log:     log,
	}
}

func (h *Handler) NewRouter(origins []string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = JSONSerializer{}
	e.Validator = validate.NewCustomValidator()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(md.CORS(origins))

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/", h.Root)
	base.GET("/manage/health", h.Health)
	base.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group("",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig(h.log)),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
	)

	api.GET("/allBooks", h.ListBooks)
	api.GET("/featuredBooks", h.ListFeaturedBooks)
	api.GET("/category/:category", h.ListBooksByCategory)
	api.GET("/book/:id", h.GetBook)
	api.POST("/addBook", h.AddBook)
	api.PUT("/update/:id", h.UpdateBook)

	api.POST("/borrowedBook/:id", h.BorrowBook)
	api.GET("/borrowedBooks/:email", h.ListBorrowedBooks)
	api.DELETE("/returnBook/:id/:bookId/:userMail", h.ReturnBook)

	return e
}

// httpError maps borrow rejections to 400. Anything else, malformed
// identifiers included, is logged and answered with a bare 500.
func (h *Handler) httpError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, errs.ErrAlreadyBorrowed),
		errors.Is(err, errs.ErrBorrowLimit):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		h.log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func (h *Handler) Root(c echo.Context) error {
	return c.String(http.StatusOK, "Server is running...")
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// ListBooks godoc
// @Summary List books
// @Tags books
// @Produce json
// @Param showAvailable query string false "true lists only books with copies left"
// @Success 200 {array} model.Book
// @Router /allBooks [get]
func (h *Handler) ListBooks(c echo.Context) error {
	onlyAvailable := c.QueryParam("showAvailable") == "true"
	books, err := h.bookSvc.ListBooks(c.Request().Context(), onlyAvailable)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, books)
}

// ListFeaturedBooks godoc
// @Summary List featured books
// @Tags books
// @Produce json
// @Success 200 {array} model.Book
// @Router /featuredBooks [get]
func (h *Handler) ListFeaturedBooks(c echo.Context) error {
	books, err := h.bookSvc.ListFeaturedBooks(c.Request().Context())
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, books)
}

// ListBooksByCategory godoc
// @Summary List books of a category
// @Tags books
// @Produce json
// @Param category path string true "book category"
// @Success 200 {array} model.Book
// @Router /category/{category} [get]
func (h *Handler) ListBooksByCategory(c echo.Context) error {
	books, err := h.bookSvc.ListBooksByCategory(c.Request().Context(), c.Param("category"))
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, books)
}

// GetBook godoc
// @Summary Get a book
// @Description responds with null when the book does not exist
// @Tags books
// @Produce json
// @Param id path string true "book id"
// @Success 200 {object} model.Book
// @Failure 500 {object} echo.HTTPError
// @Router /book/{id} [get]
func (h *Handler) GetBook(c echo.Context) error {
	book, err := h.bookSvc.GetBook(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, book)
}

// AddBook godoc
// @Summary Add a book
// @Tags books
// @Accept json
// @Produce json
// @Param book body model.Book true "book document"
// @Success 200 {object} model.InsertResult
// @Failure 400 {object} echo.HTTPError
// @Router /addBook [post]
func (h *Handler) AddBook(c echo.Context) error {
	var book model.Book
	if err := c.Bind(&book); err != nil {
		return err
	}
	res, err := h.bookSvc.AddBook(c.Request().Context(), book)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// UpdateBook godoc
// @Summary Update or insert a book
// @Tags books
// @Accept json
// @Produce json
// @Param id path string true "book id"
// @Param book body model.Book true "fields to set"
// @Success 200 {object} model.UpdateResult
// @Failure 400 {object} echo.HTTPError
// @Router /update/{id} [put]
func (h *Handler) UpdateBook(c echo.Context) error {
	var patch model.BookPatch
	if err := c.Bind(&patch); err != nil {
		return err
	}
	res, err := h.bookSvc.UpdateBook(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// BorrowBook godoc
// @Summary Borrow a book
// @Tags borrows
// @Accept json
// @Produce json
// @Param id path string true "book id"
// @Param record body model.BorrowRecord true "borrow record"
// @Success 200 {object} model.InsertResult
// @Failure 400 {object} echo.HTTPError
// @Router /borrowedBook/{id} [post]
func (h *Handler) BorrowBook(c echo.Context) error {
	var rec model.BorrowRecord
	if err := c.Bind(&rec); err != nil {
		return err
	}
	if err := c.Validate(&rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.bookSvc.BorrowBook(c.Request().Context(), c.Param("id"), rec)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ListBorrowedBooks godoc
// @Summary List the books a user holds
// @Tags borrows
// @Produce json
// @Param email path string true "user email"
// @Success 200 {array} model.BorrowRecord
// @Router /borrowedBooks/{email} [get]
func (h *Handler) ListBorrowedBooks(c echo.Context) error {
	recs, err := h.bookSvc.ListBorrowedBooks(c.Request().Context(), c.Param("email"))
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, recs)
}

// ReturnBook godoc
// @Summary Return a borrowed book
// @Tags borrows
// @Produce json
// @Param id path string true "borrow record id"
// @Param bookId path string true "book id"
// @Param userMail path string true "user email"
// @Success 200 {object} model.DeleteResult
// @Failure 400 {object} echo.HTTPError
// @Router /returnBook/{id}/{bookId}/{userMail} [delete]
func (h *Handler) ReturnBook(c echo.Context) error {
	res, err := h.bookSvc.ReturnBook(c.Request().Context(), c.Param("id"), c.Param("bookId"), c.Param("userMail"))
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
