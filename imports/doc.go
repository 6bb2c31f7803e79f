// Package imports locates loaded modules and their import table cells.
//
// On Linux modules come from /proc/self/maps and import cells are the GOT
// entries bound by JUMP_SLOT and GLOB_DAT relocations. On Windows modules
// come from the process module list and cells are IAT entries read from
// the mapped image. A cell can be handed to hook.NewImportEntry.
package imports
