package classfile

// Classfile header constants.
const (
	Magic = 0xCAFEBABE

	// Java 8; the highest version this package emits.
	MajorJava8 = 52
)

// Access flags, shared between classes, fields, and methods where the bit
// positions coincide.
const (
	AccPublic       = 0x0001
	AccPrivate      = 0x0002
	AccProtected    = 0x0004
	AccStatic       = 0x0008
	AccFinal        = 0x0010
	AccSuper        = 0x0020 // classes
	AccSynchronized = 0x0020 // methods
	AccVolatile     = 0x0040 // fields
	AccBridge       = 0x0040 // methods
	AccTransient    = 0x0080 // fields
	AccVarargs      = 0x0080 // methods
	AccNative       = 0x0100
	AccInterface    = 0x0200
	AccAbstract     = 0x0400
	AccStrict       = 0x0800
	AccSynthetic    = 0x1000
	AccAnnotation   = 0x2000
	AccEnum         = 0x4000
)

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagInvokeDynamic      = 18
)

// Attribute names this package understands; anything else is preserved as
// an opaque blob at class and field level and dropped inside Code.
const (
	attrCode              = "Code"
	attrStackMapTable     = "StackMapTable"
	attrExceptions        = "Exceptions"
	attrSourceFile        = "SourceFile"
	attrLineNumberTable   = "LineNumberTable"
	attrLocalVarTable     = "LocalVariableTable"
	attrBootstrapMethods  = "BootstrapMethods"
	attrRuntimeVisibleAnn = "RuntimeVisibleAnnotations"
	attrConstantValue     = "ConstantValue"
	attrMethodParameters  = "MethodParameters"
)
