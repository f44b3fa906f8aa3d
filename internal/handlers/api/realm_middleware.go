package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/realmgate/realmgate/internal/realms"
	"github.com/realmgate/realmgate/model"
)

const realmLocalKey = "realm"

// RealmResolver loads the enabled realm named in the path and aborts
// with 404 when it does not exist. Handlers downstream read it with
// CurrentRealm.
func RealmResolver(repo realms.Repository) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		realm, err := repo.GetByName(ctx.Context(), ctx.Params("realm"))
		if errors.Is(err, realms.ErrRealmNotFound) {
			return fiber.ErrNotFound
		}
		if err != nil {
			return err
		}
		ctx.Locals(realmLocalKey, realm)
		return ctx.Next()
	}
}

func CurrentRealm(ctx *fiber.Ctx) *model.Realm {
	realm, _ := ctx.Locals(realmLocalKey).(*model.Realm)
	return realm
}
