package config

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

func NewFiber(logger *logrus.Logger, settings *Settings) *fiber.App {
	app := fiber.New(
		fiber.Config{
			AppName:           "Handwriting Recognizer",
			BodyLimit:         int(settings.MaxUploadSize) + 1024*1024,
			DisableKeepalive:  false,
			StrictRouting:     true,
			CaseSensitive:     true,
			EnablePrintRoutes: settings.AppEnv != "production",
			JSONEncoder:       jsoniter.Marshal,
			JSONDecoder:       jsoniter.Unmarshal,
		})

	app.Use(cors.New(cors.Config{
		AllowOrigins: settings.CORSAllowOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, X-Request-ID",
	}))

	logger.Debugf("CORS enabled for origins: %s", settings.CORSAllowOrigins)

	return app
}
