package generate

import (
	"go.starlark.net/starlark"

	"github.com/strataconf/strata/pkg/engine"
)

// builtinMerge implements merge(base, overlay): a child-wins deep merge
// with the same semantics document composition uses. Objects merge
// recursively, arrays and scalars replace wholesale.
func builtinMerge(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var base, overlay *starlark.Dict
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "base", &base, "overlay", &overlay); err != nil {
		return nil, err
	}

	baseGo, err := fromStarlark(base)
	if err != nil {
		return nil, err
	}
	overlayGo, err := fromStarlark(overlay)
	if err != nil {
		return nil, err
	}

	merged := engine.DeepMerge(baseGo.(map[string]any), overlayGo.(map[string]any))
	return toStarlark(merged)
}

// builtinFragment implements fragment(items): wraps a list into the
// single-key object shape fragment files carry.
func builtinFragment(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var items *starlark.List
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "items", &items); err != nil {
		return nil, err
	}

	dict := starlark.NewDict(1)
	if err := dict.SetKey(starlark.String(engine.FragmentItemsKey), items); err != nil {
		return nil, err
	}
	return dict, nil
}
