package translate

import "strings"

// deathReasons maps death keys to the narrative that follows the player name.
var deathReasons = map[string]string{
	"death.fell.accident.generic":    "fell to their death",
	"death.attack.mob":               "was killed",
	"death.attack.fall":              "fell to their death while trying to escape",
	"death.attack.player":            "was killed by player",
	"death.attack.inFire":            "burned to death",
	"death.attack.wither":            "withered away",
	"death.attack.starve":            "starved to death",
	"death.attack.stalagmite":        "was impaled by a stalagmite",
	"death.attack.magic":             "was killed by magic",
	"death.attack.explosion":         "was blown up by an explosion",
	"death.attack.cactus":            "was pricked to death",
	"death.attack.lightningBolt":     "was struck by lightning",
	"death.attack.dragonBreath":      "was killed by dragon breath",
	"death.attack.drown":             "drowned",
	"death.attack.dryout":            "dried out",
	"death.attack.anvil":             "was squashed by a falling anvil",
	"death.attack.fallingBlock":      "was squashed by a falling block",
	"death.attack.fallingStalactite": "was impaled by a falling stalactite",
	"death.attack.flyIntoWall":       "flew into a wall",
	"death.attack.freeze":            "froze to death",
	"death.attack.fireball":          "was fireballed to death",
	"death.attack.thorns":            "was killed by thorns",
	"death.attack.cramming":          "was squished too much",
	"death.attack.trident":           "was impaled by a trident",
	"death.attack.potion":            "was killed by magic",
	"death.attack.witherSkull":       "was killed by a wither skull",
	"death.attack.lava":              "was burnt to a crisp whilst fighting",
}

const (
	entityPrefix = "%entity."
	entitySuffix = ".name"
)

// DeathReason returns the narrative for key. Unknown keys fall back to the
// key itself and report false.
func DeathReason(key string) (string, bool) {
	if reason, ok := deathReasons[key]; ok {
		return reason, true
	}
	return key, false
}

// EntityKind reduces a cause parameter such as "%entity.zombie.name" to
// "zombie". Anything else (a player name, say) is returned unchanged.
func EntityKind(param string) string {
	if !strings.HasPrefix(param, entityPrefix) {
		return param
	}
	kind := strings.TrimPrefix(param, entityPrefix)
	return strings.TrimSuffix(kind, entitySuffix)
}

// Death renders a death record: "* [player] reason[ caused by [cause]].".
func Death(key string, params []string) string {
	reason, _ := DeathReason(key)

	name := unknownPlayer
	if len(params) > 0 && params[0] != "" {
		name = params[0]
	}
	if len(params) > 1 && params[1] != "" {
		reason += " caused by [" + EntityKind(params[1]) + "]"
	}
	return "* [" + name + "] " + reason + "."
}
