package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/StudyFox/app/controllers"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App) {
	controllers.InitializeServices()
	setup(app, NewApiRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
