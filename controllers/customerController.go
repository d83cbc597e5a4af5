package controllers

import (
	"github.com/gofiber/fiber/v2"

	"crm-backend/middlewares"
	"crm-backend/services"
)

const exportFilename = "customers.xlsx"

// CustomerController exposes CustomerService over HTTP.
type CustomerController struct {
	svc *services.CustomerService
}

func NewCustomerController(svc *services.CustomerService) *CustomerController {
	return &CustomerController{svc: svc}
}

// Health answers the root liveness probe.
func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "OK"})
}

// GetCustomers lists customers, newest first. ?q= narrows the result.
func (h *CustomerController) GetCustomers(c *fiber.Ctx) error {
	customers, err := h.svc.Search(c.UserContext(), c.Query("q"))
	if err != nil {
		return err
	}
	return c.JSON(customers)
}

func (h *CustomerController) ExportCustomers(c *fiber.Ctx) error {
	data, err := h.svc.Export(c.UserContext())
	if err != nil {
		return err
	}
	c.Attachment(exportFilename)
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	return c.Send(data)
}

func (h *CustomerController) CreateCustomer(c *fiber.Ctx) error {
	var in services.CreateCustomerInput
	if err := middlewares.BindJSON(c, &in); err != nil {
		return err
	}

	customer, err := h.svc.Create(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(customer)
}

func (h *CustomerController) GetCustomer(c *fiber.Ctx) error {
	customer, err := h.svc.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(customer)
}

func (h *CustomerController) UpdateCustomer(c *fiber.Ctx) error {
	var in services.UpdateCustomerInput
	if err := middlewares.BindJSON(c, &in); err != nil {
		return err
	}

	customer, err := h.svc.Update(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(customer)
}

func (h *CustomerController) DeleteCustomer(c *fiber.Ctx) error {
	customer, err := h.svc.Delete(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "Customer deleted successfully",
		"id":      customer.ID,
	})
}
