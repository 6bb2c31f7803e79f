package jit

/*
#include <stdint.h>

void nms_invoke(uintptr_t fn, void *args, void *ret);
uintptr_t nms_dispatch_addr(void);
*/
import "C"

import (
	"unsafe"
)

//export nmsDispatch
func nmsDispatch(scratch unsafe.Pointer, handle C.uintptr_t, ret unsafe.Pointer) C.int {
	return C.int(dispatch(scratch, uintptr(handle), ret))
}

// bridgeAddr is the C-callable address of nmsDispatch.
func bridgeAddr() uintptr {
	return uintptr(C.nms_dispatch_addr())
}

// invoke calls an outbound stub with the host convention.
func invoke(entry uintptr, args, ret unsafe.Pointer) {
	C.nms_invoke(C.uintptr_t(entry), args, ret)
}
