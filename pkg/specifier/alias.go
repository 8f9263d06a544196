package specifier

import "github.com/initgraph/unittree/pkg/units"

// nameKind classifies a canonical name as plain, template or instance, for
// alias-legality checking.
type nameKind int

const (
	kindPlain nameKind = iota
	kindTemplate
	kindInstance
)

func classifyName(name string) (nameKind, units.Identity, bool) {
	id, isTemplate, ok := units.ParseIdentity(name)
	if !ok {
		return 0, id, false
	}
	switch {
	case isTemplate:
		return kindTemplate, id, true
	case id.Instance != "":
		return kindInstance, id, true
	default:
		return kindPlain, id, true
	}
}

// CheckAliasLegality implements the Alias & Template Engine's legality rule
// (§4.E): plain→plain, template→template, instance→instance aliases are
// legal; any other mapping (including a type-suffix change) emits
// BadAlias. ok is false whenever the alias should be dropped, with reason
// carrying a human-readable explanation for the warning.
func CheckAliasLegality(aliasName, targetName string) (ok bool, reason string) {
	aliasKind, aliasID, aliasOK := classifyName(aliasName)
	targetKind, targetID, targetOK := classifyName(targetName)
	if !aliasOK || !targetOK {
		return false, "alias or target name does not match a recognized unit suffix"
	}
	if aliasID.Type != targetID.Type {
		return false, "alias changes unit type suffix"
	}
	if aliasKind != targetKind {
		return false, "alias crosses plain/template/instance boundary"
	}
	return true, ""
}
