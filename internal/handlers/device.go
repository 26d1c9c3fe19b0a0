package handlers

import (
	"errors"
	"log/slog"
	"net"

	"github.com/fleetwatch/fleetwatch/internal/crypto"
	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/fleetwatch/fleetwatch/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DeviceHandler struct {
	db        *gorm.DB
	encryptor *crypto.Encryptor
}

func NewDeviceHandler(db *gorm.DB, encryptor *crypto.Encryptor) *DeviceHandler {
	return &DeviceHandler{db: db, encryptor: encryptor}
}

func (h *DeviceHandler) ListDevices(c *fiber.Ctx) error {
	query := h.db.Order("hostname ASC")
	if status := c.Query("status", ""); status != "" {
		query = query.Where("status = ?", status)
	}

	var devices []models.Device
	if err := query.Find(&devices).Error; err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to list devices")
	}
	return c.JSON(fiber.Map{"devices": devices})
}

func (h *DeviceHandler) GetDevice(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid device ID")
	}

	var device models.Device
	if err := h.db.First(&device, "id = ?", id).Error; err != nil {
		return errorJSON(c, fiber.StatusNotFound, CodeNotFound, "Device not found")
	}
	return c.JSON(device)
}

func (h *DeviceHandler) CreateDevice(c *fiber.Ctx) error {
	var req struct {
		Hostname   string `json:"hostname"`
		Address    string `json:"address"`
		Port       int    `json:"port"`
		Username   string `json:"username"`
		AuthType   string `json:"auth_type"`
		Password   string `json:"password"`
		PrivateKey string `json:"private_key"`
	}
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
	}
	if req.Hostname == "" || req.Address == "" || req.Username == "" {
		return errorJSON(c, fiber.StatusBadRequest, CodeInvalidRequest, "Hostname, address, and username are required")
	}

	device := models.Device{
		Hostname: req.Hostname,
		Address:  req.Address,
		Port:     22,
		Username: req.Username,
		AuthType: "password",
		Status:   models.DeviceStatusUnknown,
	}
	if req.Port > 0 {
		device.Port = req.Port
	}
	if req.AuthType != "" {
		device.AuthType = req.AuthType
	}

	if req.Password != "" {
		enc, err := h.encryptor.Encrypt(req.Password)
		if err != nil {
			return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to encrypt credentials")
		}
		device.EncryptedPassword = enc
	}
	if req.PrivateKey != "" {
		enc, err := h.encryptor.Encrypt(req.PrivateKey)
		if err != nil {
			return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to encrypt credentials")
		}
		device.EncryptedPrivateKey = enc
	}

	if err := h.db.Create(&device).Error; err != nil {
		slog.Error("Failed to create device", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to create device")
	}
	return c.Status(fiber.StatusCreated).JSON(device)
}

func (h *DeviceHandler) UpdateDevice(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid device ID")
	}

	var device models.Device
	if err := h.db.First(&device, "id = ?", id).Error; err != nil {
		return errorJSON(c, fiber.StatusNotFound, CodeNotFound, "Device not found")
	}

	var req struct {
		Hostname   *string `json:"hostname"`
		Address    *string `json:"address"`
		Port       *int    `json:"port"`
		Username   *string `json:"username"`
		AuthType   *string `json:"auth_type"`
		Password   *string `json:"password"`
		PrivateKey *string `json:"private_key"`
	}
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
	}

	if req.Hostname != nil {
		device.Hostname = *req.Hostname
	}
	if req.Address != nil {
		device.Address = *req.Address
	}
	if req.Port != nil {
		device.Port = *req.Port
	}
	if req.Username != nil {
		device.Username = *req.Username
	}
	if req.AuthType != nil {
		device.AuthType = *req.AuthType
	}
	if req.Password != nil && *req.Password != "" {
		enc, err := h.encryptor.Encrypt(*req.Password)
		if err != nil {
			return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to encrypt credentials")
		}
		device.EncryptedPassword = enc
	}
	if req.PrivateKey != nil && *req.PrivateKey != "" {
		enc, err := h.encryptor.Encrypt(*req.PrivateKey)
		if err != nil {
			return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to encrypt credentials")
		}
		device.EncryptedPrivateKey = enc
	}

	h.db.Save(&device)
	return c.JSON(device)
}

func (h *DeviceHandler) DeleteDevice(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid device ID")
	}

	if err := h.db.Delete(&models.Device{}, "id = ?", id).Error; err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to delete device")
	}
	return c.JSON(fiber.Map{"message": "Device deleted"})
}

// TestConnection dials the device once without pooling and stores the host
// key fingerprint on success.
func (h *DeviceHandler) TestConnection(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid device ID")
	}

	var device models.Device
	if err := h.db.First(&device, "id = ?", id).Error; err != nil {
		return errorJSON(c, fiber.StatusNotFound, CodeNotFound, "Device not found")
	}

	password, privateKey := "", ""
	if device.EncryptedPassword != "" {
		password, _ = h.encryptor.Decrypt(device.EncryptedPassword)
	}
	if device.EncryptedPrivateKey != "" {
		privateKey, _ = h.encryptor.Decrypt(device.EncryptedPrivateKey)
	}

	fingerprint, err := services.TestSSHConnection(device.Address, device.Port, device.Username, password, privateKey, device.AuthType)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return errorJSON(c, fiber.StatusGatewayTimeout, CodeDependencyTimeout, "Connection timed out: "+err.Error())
		}
		return errorJSON(c, fiber.StatusBadGateway, CodeDependencyUnavailable, "Connection failed: "+err.Error())
	}

	if fingerprint != "" {
		h.db.Model(&device).Update("fingerprint", fingerprint)
	}
	return c.JSON(fiber.Map{
		"message":     "Connection successful",
		"fingerprint": fingerprint,
	})
}
